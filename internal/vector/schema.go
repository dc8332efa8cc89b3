package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the Weaviate class holding catalog document vectors.
const ClassName = "CatalogDocument"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func schemaProperties() []*models.Property {
	return []*models.Property{
		{Name: "docId", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "sourceType", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "sourceId", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "title", DataType: []string{"text"}},
		{Name: "summary", DataType: []string{"text"}},
		{Name: "model", DataType: []string{"text"}, Tokenization: "field"},
	}
}

// EnsureSchema creates the catalog document class, or adds any properties
// missing from an existing one.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return err
	}

	properties := schemaProperties()
	if !exists {
		return client.CreateClass(ctx, &models.Class{
			Class:       ClassName,
			Description: "A rendered catalog product or article",
			Vectorizer:  "none",
			Properties:  properties,
		})
	}

	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return err
	}

	existing := make(map[string]bool)
	for _, p := range class.Properties {
		existing[p.Name] = true
	}

	for _, p := range properties {
		if !existing[p.Name] {
			if err := client.AddProperty(ctx, ClassName, p); err != nil {
				return err
			}
		}
	}
	return nil
}
