package post

type postInput struct {
	ID int64 `path:"id" minimum:"1" example:"900" doc:"ID публикации"`
}
