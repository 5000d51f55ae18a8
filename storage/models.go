package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ID identifies a record. Remote stores with serial keys send numbers; they
// are kept in their decimal string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Meta holds the columns every record has. Backends own these values.
type Meta struct {
	ID        ID        `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Blog is a blog post.
type Blog struct {
	Meta
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Excerpt   string   `json:"excerpt"`
	Author    string   `json:"author"`
	Tags      []string `json:"tags"`
	Featured  bool     `json:"featured"`
	Published bool     `json:"published"`
	ReadTime  string   `json:"read_time"`
}

// BlogPatch is a partial update of a Blog.
type BlogPatch struct {
	Title     *string   `json:"title,omitempty"`
	Content   *string   `json:"content,omitempty"`
	Excerpt   *string   `json:"excerpt,omitempty"`
	Author    *string   `json:"author,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	Featured  *bool     `json:"featured,omitempty"`
	Published *bool     `json:"published,omitempty"`
	ReadTime  *string   `json:"read_time,omitempty"`
}

// Hack is a bookmarked platform, tool, resource or writeup.
type Hack struct {
	Meta
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Favicon     string   `json:"favicon"`
	Difficulty  string   `json:"difficulty"`
	Tags        []string `json:"tags"`
	Featured    bool     `json:"featured"`
}

// HackPatch is a partial update of a Hack.
type HackPatch struct {
	Title       *string   `json:"title,omitempty"`
	URL         *string   `json:"url,omitempty"`
	Description *string   `json:"description,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Favicon     *string   `json:"favicon,omitempty"`
	Difficulty  *string   `json:"difficulty,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	Featured    *bool     `json:"featured,omitempty"`
}

// Secret is a stored credential. When Encrypted is set, Value holds base64
// ciphertext that only an unlocked vault session can open.
type Secret struct {
	Meta
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Encrypted   bool   `json:"encrypted"`
}

// SecretPatch is a partial update of a Secret.
type SecretPatch struct {
	Key         *string `json:"key,omitempty"`
	Value       *string `json:"value,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	Encrypted   *bool   `json:"encrypted,omitempty"`
}

// Project is a portfolio project card.
type Project struct {
	Meta
	Title       string   `json:"title"`
	Description string   `json:"description"`
	TechStack   []string `json:"tech_stack"`
	GithubURL   string   `json:"github_url"`
	LiveURL     string   `json:"live_url"`
	ImageURL    string   `json:"image_url"`
	Featured    bool     `json:"featured"`
	OrderIndex  int      `json:"order_index"`
}

// ProjectPatch is a partial update of a Project.
type ProjectPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	TechStack   *[]string `json:"tech_stack,omitempty"`
	GithubURL   *string   `json:"github_url,omitempty"`
	LiveURL     *string   `json:"live_url,omitempty"`
	ImageURL    *string   `json:"image_url,omitempty"`
	Featured    *bool     `json:"featured,omitempty"`
	OrderIndex  *int      `json:"order_index,omitempty"`
}

// PortfolioContent is a named section of the landing page. Content is
// free-form JSON.
type PortfolioContent struct {
	Meta
	Section   string          `json:"section"`
	Title     string          `json:"title"`
	Content   json.RawMessage `json:"content"`
	Published bool            `json:"published"`
}

// PortfolioContentPatch is a partial update of a PortfolioContent.
type PortfolioContentPatch struct {
	Section   *string         `json:"section,omitempty"`
	Title     *string         `json:"title,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Published *bool           `json:"published,omitempty"`
}

const (
	defaultAuthor         = "0xN1kU_H4X_!"
	defaultReadTime       = "5 min read"
	defaultSecretCategory = "general"
)

func blogDefaults(b *Blog) {
	if b.Author == "" {
		b.Author = defaultAuthor
	}
	if b.ReadTime == "" {
		b.ReadTime = defaultReadTime
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
}

func hackDefaults(h *Hack) {
	if h.Tags == nil {
		h.Tags = []string{}
	}
}

func secretDefaults(s *Secret) {
	if s.Category == "" {
		s.Category = defaultSecretCategory
	}
}

func projectDefaults(p *Project) {
	if p.TechStack == nil {
		p.TechStack = []string{}
	}
}

func contentDefaults(*PortfolioContent) {}
