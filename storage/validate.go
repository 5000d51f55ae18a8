package storage

import (
	"encoding/json"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxTitleLength   = 512
	MaxContentLength = 1 << 20
	MaxKeyLength     = 256
	MaxValueLength   = 64 << 10
	MaxTagCount      = 64
	MaxIDLength      = 256
)

var (
	hackDifficulties = map[string]bool{"": true, "beginner": true, "intermediate": true, "advanced": true}
	secretCategories = map[string]bool{"general": true, "api": true, "database": true, "encryption": true}
)

func validateText(entity, field, value string, required bool, maxLen int) error {
	if required && strings.TrimSpace(value) == "" {
		return validationErrorf(entity, field, "must not be empty")
	}
	if len(value) > maxLen {
		return validationErrorf(entity, field, "exceeds maximum length of %d", maxLen)
	}
	if !utf8.ValidString(value) {
		return validationErrorf(entity, field, "contains invalid UTF-8")
	}
	return nil
}

func validateOptionalText(entity, field string, value *string, maxLen int) error {
	if value == nil {
		return nil
	}
	return validateText(entity, field, *value, true, maxLen)
}

func validateURL(entity, field, value string, required bool) error {
	if value == "" && !required {
		return nil
	}
	if err := validateText(entity, field, value, required, 2048); err != nil {
		return err
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validationErrorf(entity, field, "must be an http(s) URL")
	}
	return nil
}

func validateTags(entity, field string, tags []string) error {
	if len(tags) > MaxTagCount {
		return validationErrorf(entity, field, "has %d entries, maximum is %d", len(tags), MaxTagCount)
	}
	for _, tag := range tags {
		if err := validateText(entity, field, tag, true, 64); err != nil {
			return err
		}
	}
	return nil
}

// validateSecretKey keeps keys usable as identifiers in URLs and logs.
func validateSecretKey(key string) error {
	if err := validateText("secret", "key", key, true, MaxKeyLength); err != nil {
		return err
	}
	for _, r := range key {
		if r == '/' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return validationErrorf("secret", "key", "contains forbidden character %q", r)
		}
	}
	return nil
}

func validateID(id ID) error {
	if id == "" {
		return validationErrorf("record", "id", "must not be empty")
	}
	if len(id) > MaxIDLength {
		return validationErrorf("record", "id", "exceeds maximum length of %d", MaxIDLength)
	}
	for _, r := range string(id) {
		if r == '/' || unicode.IsControl(r) {
			return validationErrorf("record", "id", "contains forbidden character %q", r)
		}
	}
	return nil
}

// Validate checks a blog draft.
func (b Blog) Validate() error {
	if err := validateText("blog", "title", b.Title, true, MaxTitleLength); err != nil {
		return err
	}
	if err := validateText("blog", "content", b.Content, true, MaxContentLength); err != nil {
		return err
	}
	if err := validateText("blog", "excerpt", b.Excerpt, true, MaxTitleLength*4); err != nil {
		return err
	}
	return validateTags("blog", "tags", b.Tags)
}

// Validate checks a blog patch.
func (p BlogPatch) Validate() error {
	if err := validateOptionalText("blog", "title", p.Title, MaxTitleLength); err != nil {
		return err
	}
	if err := validateOptionalText("blog", "content", p.Content, MaxContentLength); err != nil {
		return err
	}
	if err := validateOptionalText("blog", "excerpt", p.Excerpt, MaxTitleLength*4); err != nil {
		return err
	}
	if err := validateOptionalText("blog", "author", p.Author, MaxTitleLength); err != nil {
		return err
	}
	if p.Tags != nil {
		return validateTags("blog", "tags", *p.Tags)
	}
	return nil
}

// Validate checks a hack draft.
func (h Hack) Validate() error {
	if err := validateText("hack", "title", h.Title, true, MaxTitleLength); err != nil {
		return err
	}
	if err := validateURL("hack", "url", h.URL, true); err != nil {
		return err
	}
	if err := validateText("hack", "category", h.Category, true, 64); err != nil {
		return err
	}
	if !hackDifficulties[h.Difficulty] {
		return validationErrorf("hack", "difficulty", "must be beginner, intermediate or advanced")
	}
	if err := validateURL("hack", "favicon", h.Favicon, false); err != nil {
		return err
	}
	return validateTags("hack", "tags", h.Tags)
}

// Validate checks a hack patch.
func (p HackPatch) Validate() error {
	if err := validateOptionalText("hack", "title", p.Title, MaxTitleLength); err != nil {
		return err
	}
	if p.URL != nil {
		if err := validateURL("hack", "url", *p.URL, true); err != nil {
			return err
		}
	}
	if err := validateOptionalText("hack", "category", p.Category, 64); err != nil {
		return err
	}
	if p.Difficulty != nil && !hackDifficulties[*p.Difficulty] {
		return validationErrorf("hack", "difficulty", "must be beginner, intermediate or advanced")
	}
	if p.Tags != nil {
		return validateTags("hack", "tags", *p.Tags)
	}
	return nil
}

// Validate checks a secret draft.
func (s Secret) Validate() error {
	if err := validateSecretKey(s.Key); err != nil {
		return err
	}
	if err := validateText("secret", "value", s.Value, true, MaxValueLength); err != nil {
		return err
	}
	if !secretCategories[s.Category] {
		return validationErrorf("secret", "category", "unknown category %q", s.Category)
	}
	return nil
}

// Validate checks a secret patch.
func (p SecretPatch) Validate() error {
	if p.Key != nil {
		if err := validateSecretKey(*p.Key); err != nil {
			return err
		}
	}
	if err := validateOptionalText("secret", "value", p.Value, MaxValueLength); err != nil {
		return err
	}
	if p.Category != nil && !secretCategories[*p.Category] {
		return validationErrorf("secret", "category", "unknown category %q", *p.Category)
	}
	return nil
}

// Validate checks a project draft.
func (p Project) Validate() error {
	if err := validateText("project", "title", p.Title, true, MaxTitleLength); err != nil {
		return err
	}
	if err := validateText("project", "description", p.Description, true, MaxContentLength); err != nil {
		return err
	}
	for field, u := range map[string]string{"github_url": p.GithubURL, "live_url": p.LiveURL, "image_url": p.ImageURL} {
		if err := validateURL("project", field, u, false); err != nil {
			return err
		}
	}
	if p.OrderIndex < 0 {
		return validationErrorf("project", "order_index", "must not be negative")
	}
	return validateTags("project", "tech_stack", p.TechStack)
}

// Validate checks a project patch.
func (p ProjectPatch) Validate() error {
	if err := validateOptionalText("project", "title", p.Title, MaxTitleLength); err != nil {
		return err
	}
	if err := validateOptionalText("project", "description", p.Description, MaxContentLength); err != nil {
		return err
	}
	for field, u := range map[string]*string{"github_url": p.GithubURL, "live_url": p.LiveURL, "image_url": p.ImageURL} {
		if u == nil {
			continue
		}
		if err := validateURL("project", field, *u, false); err != nil {
			return err
		}
	}
	if p.OrderIndex != nil && *p.OrderIndex < 0 {
		return validationErrorf("project", "order_index", "must not be negative")
	}
	if p.TechStack != nil {
		return validateTags("project", "tech_stack", *p.TechStack)
	}
	return nil
}

// Validate checks a portfolio content draft.
func (c PortfolioContent) Validate() error {
	if err := validateText("portfolio_content", "section", c.Section, true, 64); err != nil {
		return err
	}
	return validateContentJSON(c.Content, true)
}

// Validate checks a portfolio content patch.
func (p PortfolioContentPatch) Validate() error {
	if err := validateOptionalText("portfolio_content", "section", p.Section, 64); err != nil {
		return err
	}
	if p.Content != nil {
		return validateContentJSON(p.Content, true)
	}
	return nil
}

func validateContentJSON(raw json.RawMessage, required bool) error {
	if len(raw) == 0 {
		if required {
			return validationErrorf("portfolio_content", "content", "must not be empty")
		}
		return nil
	}
	if len(raw) > MaxContentLength {
		return validationErrorf("portfolio_content", "content", "exceeds maximum length of %d", MaxContentLength)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return validationErrorf("portfolio_content", "content", "must be a JSON object")
	}
	return nil
}
