package resource

import "errors"

var ErrUnknownResource = errors.New("unknown resource")
