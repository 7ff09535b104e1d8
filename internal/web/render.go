package web

import (
	"bytes"
	"embed"
	"html/template"
	"io"

	"github.com/idilsaglam/livetodo/internal/app"
	"github.com/idilsaglam/livetodo/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// row is the template view of one item.
type row struct {
	ID        string
	Content   string
	Completed bool
	DeleteID  string
}

func rows(items []model.TodoItem) []row {
	out := make([]row, len(items))
	for i, it := range items {
		out[i] = row{
			ID:        it.ID,
			Content:   it.Content,
			Completed: it.Completed,
			DeleteID:  app.DeleteControlID(it.ID),
		}
	}
	return out
}

// RenderList writes the list container contents: one <li> per item with a
// checkbox (id = item id), a label struck through when completed, and a
// delete button (id = "delete-<item id>"). The same list always renders to
// the same bytes.
func RenderList(w io.Writer, items []model.TodoItem) error {
	return templates.ExecuteTemplate(w, "list", rows(items))
}

func renderListString(items []model.TodoItem) (string, error) {
	var buf bytes.Buffer
	if err := RenderList(&buf, items); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type pageData struct {
	Collection string
	Items      []row
}

func renderPage(w io.Writer, collection string, items []model.TodoItem) error {
	return templates.ExecuteTemplate(w, "index", pageData{Collection: collection, Items: rows(items)})
}
