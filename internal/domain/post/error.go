package post

import "errors"

var (
	ErrNotFound  = errors.New("post not found")
	ErrForbidden = errors.New("only the author can delete a post")
)
