package types

import (
	"time"

	"github.com/IshaanNene/martstalk/internal/identity"
)

// ProductRecord is the unit of data flowing from extraction through the
// item pipeline to storage. Base products and their variants use the
// same shape; variants set IsVariation plus the axis/value pair.
type ProductRecord struct {
	Keyword         string    `json:"search_keyword" bson:"search_keyword"`
	ProductURL      string    `json:"product_url" bson:"product_url"`
	ASIN            string    `json:"asin" bson:"asin"`
	Title           string    `json:"title" bson:"title"`
	MainImageURL    string    `json:"main_image_url" bson:"main_image_url"`
	ImageURLs       []string  `json:"image_urls" bson:"image_urls"`
	DownloadedImage string    `json:"downloaded_image_name" bson:"downloaded_image_name"`
	IsVariation     bool      `json:"is_variation" bson:"is_variation"`
	VariationType   string    `json:"variation_type" bson:"variation_type"`
	VariationValue  string    `json:"variation_value" bson:"variation_value"`
	CrawledAt       time.Time `json:"crawled_at" bson:"crawled_at"`

	// Identity that fetched the page this record came from. Image
	// downloads reuse it so the exit IP stays consistent per record.
	Identity *identity.Identity `json:"-" bson:"-"`
}

// ID returns the preferred dedup key: ASIN first, product URL second.
// Empty when the record carries neither.
func (r *ProductRecord) ID() string {
	if r.ASIN != "" {
		return r.ASIN
	}
	return r.ProductURL
}
