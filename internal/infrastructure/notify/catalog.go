package notify

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"github.com/pelletier/go-toml/v2"
)

//go:embed templates.toml
var defaultTemplates []byte

// Template is one catalog entry. Subject is ignored for SMS.
type Template struct {
	Subject string `toml:"subject"`
	Body    string `toml:"body"`
}

// Catalog holds the parsed message templates.
type Catalog struct {
	Templates map[string]Template `toml:"templates"`

	parsed map[string]*template.Template
}

// LoadCatalog parses the embedded catalog, or the file at path when set.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultTemplates
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read templates: %w", err)
		}
		data = b
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	c.parsed = make(map[string]*template.Template, 2*len(c.Templates))
	for name, t := range c.Templates {
		subj, err := template.New(name + ".subject").Option("missingkey=error").Parse(t.Subject)
		if err != nil {
			return nil, fmt.Errorf("template %s subject: %w", name, err)
		}
		body, err := template.New(name + ".body").Option("missingkey=error").Parse(t.Body)
		if err != nil {
			return nil, fmt.Errorf("template %s body: %w", name, err)
		}
		c.parsed[name+".subject"] = subj
		c.parsed[name+".body"] = body
	}
	return &c, nil
}

// Render fills the named template with payload.
func (c *Catalog) Render(name string, payload map[string]string) (subject, body string, err error) {
	subj, ok := c.parsed[name+".subject"]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", name)
	}
	var sb, bb bytes.Buffer
	if err := subj.Execute(&sb, payload); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}
	if err := c.parsed[name+".body"].Execute(&bb, payload); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}
	return sb.String(), bb.String(), nil
}
