package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/weaviate/weaviate/entities/models"
)

type MockSchemaClient struct {
	CreatedClass    *models.Class
	ExistingClass   *models.Class
	AddedProperties []*models.Property
	ExistsErr       error
}

func (m *MockSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	return m.ExistingClass != nil, nil
}

func (m *MockSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	m.CreatedClass = class
	return nil
}

func (m *MockSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return m.ExistingClass, nil
}

func (m *MockSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	m.AddedProperties = append(m.AddedProperties, property)
	return nil
}

func TestEnsureSchema_CreatesClass(t *testing.T) {
	client := &MockSchemaClient{}
	err := EnsureSchema(context.Background(), client)
	assert.NoError(t, err)

	if assert.NotNil(t, client.CreatedClass) {
		assert.Equal(t, ClassName, client.CreatedClass.Class)
		assert.Equal(t, "none", client.CreatedClass.Vectorizer)

		names := make([]string, 0, len(client.CreatedClass.Properties))
		for _, p := range client.CreatedClass.Properties {
			names = append(names, p.Name)
			if p.Name == "docId" {
				assert.Equal(t, "field", p.Tokenization)
			}
		}
		assert.ElementsMatch(t, []string{"docId", "sourceType", "sourceId", "title", "summary", "model"}, names)
	}
}

func TestEnsureSchema_AddsMissingProperties(t *testing.T) {
	client := &MockSchemaClient{
		ExistingClass: &models.Class{
			Class: ClassName,
			Properties: []*models.Property{
				{Name: "docId", DataType: []string{"text"}},
				{Name: "sourceType", DataType: []string{"text"}},
				{Name: "sourceId", DataType: []string{"text"}},
				{Name: "summary", DataType: []string{"text"}},
			},
		},
	}

	assert.NoError(t, EnsureSchema(context.Background(), client))
	assert.Nil(t, client.CreatedClass)

	var added []string
	for _, p := range client.AddedProperties {
		added = append(added, p.Name)
	}
	assert.Equal(t, []string{"title", "model"}, added)
}

func TestEnsureSchema_PropagatesError(t *testing.T) {
	client := &MockSchemaClient{ExistsErr: errors.New("connection refused")}
	assert.Error(t, EnsureSchema(context.Background(), client))
}
