package weaviate

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"mercora/backend/internal/vector"
)

const listPageSize = 500

// Index stores catalog document vectors in a Weaviate class. Object UUIDs
// are derived from document ids so re-upserting an id overwrites it.
type Index struct {
	client    *weaviate.Client
	className string
}

func NewIndex(client *weaviate.Client) *Index {
	return &Index{client: client, className: vector.ClassName}
}

func objectID(docID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID)).String())
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", vector.ErrIndexUnavailable, op, err)
}

func (i *Index) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	after := ""
	for {
		getter := i.client.Data().ObjectsGetter().
			WithClassName(i.className).
			WithLimit(listPageSize)
		if after != "" {
			getter = getter.WithAfter(after)
		}
		objs, err := getter.Do(ctx)
		if err != nil {
			return nil, unavailable("list", err)
		}
		for _, o := range objs {
			if props, ok := o.Properties.(map[string]interface{}); ok {
				if id, ok := props["docId"].(string); ok {
					ids = append(ids, id)
				}
			}
		}
		if len(objs) < listPageSize {
			return ids, nil
		}
		after = objs[len(objs)-1].ID.String()
	}
}

func (i *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := i.client.Batch().ObjectsBatchDeleter().
		WithClassName(i.className).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"docId"}).
			WithOperator(filters.ContainsAny).
			WithValueText(ids...)).
		Do(ctx)
	if err != nil {
		return unavailable("delete", err)
	}
	return nil
}

func (i *Index) Upsert(ctx context.Context, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	objs := make([]*models.Object, 0, len(entries))
	for _, e := range entries {
		objs = append(objs, &models.Object{
			Class: i.className,
			ID:    objectID(e.ID),
			Properties: map[string]interface{}{
				"docId":      e.ID,
				"sourceType": e.Metadata.SourceType,
				"sourceId":   e.Metadata.SourceID,
				"title":      e.Metadata.Title,
				"summary":    e.Metadata.Summary,
				"model":      e.Metadata.Model,
			},
			Vector: e.Values,
		})
	}

	resp, err := i.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return unavailable("upsert", err)
	}

	var failed []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			failed = append(failed, fmt.Sprintf("%s: %s", r.ID, e.Message))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("upsert rejected %d objects: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

func (i *Index) Query(ctx context.Context, values []float32, topK int) ([]vector.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	nearVector := i.client.GraphQL().NearVectorArgBuilder().WithVector(values)

	fields := []graphql.Field{
		{Name: "docId"},
		{Name: "sourceType"},
		{Name: "sourceId"},
		{Name: "title"},
		{Name: "summary"},
		{Name: "model"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := i.client.GraphQL().Get().
		WithClassName(i.className).
		WithNearVector(nearVector).
		WithLimit(topK).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, unavailable("query", err)
	}
	if len(res.Errors) > 0 {
		return nil, unavailable("query", fmt.Errorf("graphql error: %s", res.Errors[0].Message))
	}

	var matches []vector.Match
	data, _ := res.Data["Get"].(map[string]interface{})
	rows, _ := data[i.className].([]interface{})
	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		m := vector.Match{
			ID: stringProp(props, "docId"),
			Metadata: vector.Metadata{
				SourceType: stringProp(props, "sourceType"),
				SourceID:   stringProp(props, "sourceId"),
				Title:      stringProp(props, "title"),
				Summary:    stringProp(props, "summary"),
				Model:      stringProp(props, "model"),
			},
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				m.Score = float32(1 - d)
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (i *Index) Count(ctx context.Context) (int, error) {
	res, err := i.client.GraphQL().Aggregate().
		WithClassName(i.className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, unavailable("count", err)
	}
	if len(res.Errors) > 0 {
		return 0, unavailable("count", fmt.Errorf("graphql error: %s", res.Errors[0].Message))
	}

	agg, _ := res.Data["Aggregate"].(map[string]interface{})
	rows, _ := agg[i.className].([]interface{})
	if len(rows) == 0 {
		return 0, nil
	}
	row, _ := rows[0].(map[string]interface{})
	meta, _ := row["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int(count), nil
}

func stringProp(props map[string]interface{}, key string) string {
	s, _ := props[key].(string)
	return s
}
