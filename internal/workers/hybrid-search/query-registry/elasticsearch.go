package queryregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"facility-search-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticsearchRegistry serves the same predicates from a provider index
// whose documents use the EntityRecord JSON field names.
type ElasticsearchRegistry struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchRegistry(client *elasticsearch.Client, index string) *ElasticsearchRegistry {
	return &ElasticsearchRegistry{client: client, index: index}
}

func (r *ElasticsearchRegistry) Name() string { return "elasticsearch" }

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source models.EntityRecord `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (r *ElasticsearchRegistry) Search(ctx context.Context, p Predicates) ([]models.EntityRecord, int, error) {
	body, err := json.Marshal(buildSearchBody(p))
	if err != nil {
		return nil, 0, err
	}

	req := esapi.SearchRequest{
		Index: []string{r.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, r.client)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, fmt.Errorf("search error: %s", res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}

	records := make([]models.EntityRecord, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		records = append(records, hit.Source)
	}
	return records, parsed.Hits.Total.Value, nil
}

func buildSearchBody(p Predicates) map[string]interface{} {
	filters := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"active": true}},
	}

	if p.ExternalID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"npi": p.ExternalID},
		})
	}
	if len(p.NamePatterns) > 0 {
		filters = append(filters, anyOf("match_phrase", "name", p.NamePatterns))
	}
	if len(p.Cities) > 0 {
		filters = append(filters, anyOf("match_phrase", "city", p.Cities))
	}
	if p.State != "" {
		should := []interface{}{
			map[string]interface{}{"match_phrase": map[string]interface{}{"state": p.State}},
		}
		if p.StateCode != "" {
			should = append(should, map[string]interface{}{
				"term": map[string]interface{}{"stateCode": p.StateCode},
			})
		}
		filters = append(filters, map[string]interface{}{
			"bool": map[string]interface{}{"should": should, "minimum_should_match": 1},
		})
	}
	if p.Zip != "" {
		filters = append(filters, map[string]interface{}{
			"prefix": map[string]interface{}{"zipCode": p.Zip},
		})
	}
	if len(p.FacilityTypes) > 0 {
		filters = append(filters, anyOf("match_phrase", "type", p.FacilityTypes))
	}
	if len(p.Ownership) > 0 {
		filters = append(filters, anyOf("match_phrase", "ownership", p.Ownership))
	}

	return map[string]interface{}{
		"size":             p.Limit,
		"track_total_hits": true,
		"sort":             []interface{}{map[string]interface{}{"name.keyword": "asc"}},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		},
	}
}

func anyOf(kind, field string, values []string) map[string]interface{} {
	should := make([]interface{}, 0, len(values))
	for _, v := range values {
		should = append(should, map[string]interface{}{
			kind: map[string]interface{}{field: v},
		})
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{"should": should, "minimum_should_match": 1},
	}
}
