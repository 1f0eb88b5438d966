package domain

// Post is a piece of content published by a user. Timestamp is a unix time in
// seconds captured once at creation.
type Post struct {
	ID        string
	AuthorID  string
	Content   string
	Timestamp int64
	Likes     int
}

func NewPost(id, authorID, content string, ts int64) Post {
	return Post{
		ID:        id,
		AuthorID:  authorID,
		Content:   content,
		Timestamp: ts,
	}
}

// Like increments the unattributed like counter.
func (p *Post) Like() {
	p.Likes++
}

// EditContent replaces the content; empty content is ignored.
func (p *Post) EditContent(content string) {
	if content == "" {
		return
	}
	p.Content = content
}

// Snapshot is the full persisted state of the store.
type Snapshot struct {
	Users []User
	Posts []Post
}
