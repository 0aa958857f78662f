package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/seoforge-ai/seoforge/internal/model"
)

// apiVersion is the pinned Admin API version. Bump deliberately — Shopify
// retires versions on a quarterly cadence.
const apiVersion = "2024-10"

// productPageSize is the Admin API's maximum page size.
const productPageSize = 250

// AdminClient reads and writes products through the Shopify Admin REST API.
// It implements both EntityStore and the apply executor's WriteTarget.
type AdminClient struct {
	shopDomain string // e.g. "example.myshopify.com"
	token      string
	httpClient *http.Client
}

// NewAdminClient creates a client for one store, authenticated with an
// Admin API access token.
func NewAdminClient(shopDomain, token string) (*AdminClient, error) {
	if shopDomain == "" || token == "" {
		return nil, fmt.Errorf("shopify: shop domain and access token are required")
	}
	return &AdminClient{
		shopDomain: shopDomain,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// product is the subset of the Admin API product resource the engine reads.
type product struct {
	ID                   int64  `json:"id"`
	Title                string `json:"title"`
	BodyHTML             string `json:"body_html"`
	GlobalTitleTag       string `json:"metafields_global_title_tag"`
	GlobalDescriptionTag string `json:"metafields_global_description_tag"`
}

// fieldValue maps an engine field name onto the product resource.
func (p product) fieldValue(field string) (string, bool) {
	switch field {
	case "title":
		return p.Title, true
	case "body_html":
		return p.BodyHTML, true
	case "seo_title":
		return p.GlobalTitleTag, true
	case "seo_description":
		return p.GlobalDescriptionTag, true
	default:
		return "", false
	}
}

// apiField maps an engine field name to its Admin API property name.
func apiField(field string) (string, bool) {
	switch field {
	case "title":
		return "title", true
	case "body_html":
		return "body_html", true
	case "seo_title":
		return "metafields_global_title_tag", true
	case "seo_description":
		return "metafields_global_description_tag", true
	default:
		return "", false
	}
}

// QueryMatching pages through the store's products and returns the IDs
// whose field matches the criteria. Pagination is since_id based, which is
// stable across pages even while products are created concurrently.
func (c *AdminClient) QueryMatching(ctx context.Context, criteria model.Criteria) ([]model.EntityID, error) {
	if _, ok := apiField(criteria.Field); !ok {
		return nil, fmt.Errorf("shopify: unsupported criteria field %q", criteria.Field)
	}

	var ids []model.EntityID
	sinceID := int64(0)
	for {
		page, err := c.listProducts(ctx, sinceID)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return ids, nil
		}
		for _, p := range page {
			value, _ := p.fieldValue(criteria.Field)
			if matches(value, criteria) {
				ids = append(ids, model.EntityID(strconv.FormatInt(p.ID, 10)))
			}
			if p.ID > sinceID {
				sinceID = p.ID
			}
		}
		if len(page) < productPageSize {
			return ids, nil
		}
	}
}

// ReadField returns the current value of one product field.
func (c *AdminClient) ReadField(ctx context.Context, id model.EntityID, field string) (string, error) {
	if _, ok := apiField(field); !ok {
		return "", fmt.Errorf("shopify: unsupported field %q", field)
	}

	var out struct {
		Product product `json:"product"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%s.json", id), nil, &out); err != nil {
		return "", fmt.Errorf("shopify: read product %s: %w", id, err)
	}
	value, _ := out.Product.fieldValue(field)
	return value, nil
}

// WriteField updates one product field.
func (c *AdminClient) WriteField(ctx context.Context, id model.EntityID, field, value string) error {
	prop, ok := apiField(field)
	if !ok {
		return fmt.Errorf("shopify: unsupported field %q", field)
	}

	numericID, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return fmt.Errorf("shopify: invalid product id %q: %w", id, err)
	}

	payload := map[string]any{
		"product": map[string]any{"id": numericID, prop: value},
	}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/products/%s.json", id), payload, nil); err != nil {
		return fmt.Errorf("shopify: update product %s: %w", id, err)
	}
	return nil
}

func (c *AdminClient) listProducts(ctx context.Context, sinceID int64) ([]product, error) {
	path := fmt.Sprintf("/products.json?limit=%d&since_id=%d&fields=id,title,body_html,metafields_global_title_tag,metafields_global_description_tag",
		productPageSize, sinceID)

	var out struct {
		Products []product `json:"products"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("shopify: list products: %w", err)
	}
	return out.Products, nil
}

func (c *AdminClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	url := fmt.Sprintf("https://%s/admin/api/%s%s", c.shopDomain, apiVersion, path)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
