// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package templates renders the embedded HTML pages through Echo's
// Renderer interface.
package templates

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

//go:embed pages/*.html
var files embed.FS

// PageData is the data every page template receives.
type PageData struct {
	Email   string
	Message string
	Error   string
	BaseURL string
}

// Renderer implements echo.Renderer over the embedded page templates.
type Renderer struct {
	templates *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	tmpl, err := template.ParseFS(files, "pages/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// Render renders the named template.
func (r *Renderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}
