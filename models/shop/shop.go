// Package shop holds the demo catalog models used by the example binary
// and the integration tests.
package shop

import (
	"time"

	"github.com/querykit/filterset/query"
	"github.com/querykit/filterset/schema"
)

type Category struct {
	ID     int64     `db:"id" json:"id"`
	Name   string    `db:"name" json:"name"`
	Parent *Category `db:"-" json:"parent,omitempty" filterset:"rel=Category,local=parent_id"`
}

type Manufacturer struct {
	ID      int64  `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Country string `db:"country" json:"country"`
}

type Product struct {
	ID           int64         `db:"id" json:"id"`
	Name         string        `db:"name" json:"name"`
	SKU          string        `db:"sku" json:"sku"`
	Price        float64       `db:"price" json:"price"`
	Stock        int64         `db:"stock" json:"stock"`
	InStock      bool          `db:"in_stock" json:"in_stock"`
	ReleaseDate  *time.Time    `db:"release_date" json:"release_date,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	Category     *Category     `db:"-" json:"category,omitempty" filterset:"rel=Category"`
	Manufacturer *Manufacturer `db:"-" json:"manufacturer,omitempty" filterset:"rel=Manufacturer"`
}

// Register derives the catalog models from their structs and registers them.
func Register(reg *schema.Registry) error {
	product, err := schema.FromStruct("Product", "products", Product{})
	if err != nil {
		return err
	}
	category, err := schema.FromStruct("Category", "categories", Category{})
	if err != nil {
		return err
	}
	manufacturer, err := schema.FromStruct("Manufacturer", "manufacturers", Manufacturer{})
	if err != nil {
		return err
	}

	reg.Register(product)
	reg.Register(category)
	reg.Register(manufacturer)
	return nil
}

// SeedRecords returns an in-memory product catalog with relation branches
// populated, for running the example binary without a database.
func SeedRecords() []query.Record {
	peripherals := query.Record{"id": int64(1), "name": "Peripherals"}
	displays := query.Record{"id": int64(2), "name": "Displays"}
	audio := query.Record{"id": int64(3), "name": "Audio", "parent": peripherals}

	keytron := query.Record{"id": int64(1), "name": "Keytron", "country": "TW"}
	visiond := query.Record{"id": int64(2), "name": "VisionD", "country": "DE"}
	soundcore := query.Record{"id": int64(3), "name": "SoundCore", "country": "US"}

	date := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	return []query.Record{
		{
			"id": int64(1), "name": "Ergo Keyboard", "sku": "KB-100", "price": 89.0,
			"stock": int64(42), "in_stock": true,
			"release_date": date(2022, 3, 14), "created_at": date(2022, 1, 5),
			"category_id": int64(1), "category": peripherals,
			"manufacturer_id": int64(1), "manufacturer": keytron,
		},
		{
			"id": int64(2), "name": "Compact Mouse", "sku": "MS-210", "price": 24.5,
			"stock": int64(130), "in_stock": true,
			"release_date": date(2021, 11, 2), "created_at": date(2021, 9, 20),
			"category_id": int64(1), "category": peripherals,
			"manufacturer_id": int64(1), "manufacturer": keytron,
		},
		{
			"id": int64(3), "name": "4K Monitor", "sku": "MN-415", "price": 429.0,
			"stock": int64(8), "in_stock": true,
			"release_date": date(2023, 6, 1), "created_at": date(2023, 4, 18),
			"category_id": int64(2), "category": displays,
			"manufacturer_id": int64(2), "manufacturer": visiond,
		},
		{
			"id": int64(4), "name": "Portable Monitor", "sku": "MN-501", "price": 199.0,
			"stock": int64(0), "in_stock": false,
			"release_date": date(2024, 2, 19), "created_at": date(2024, 1, 10),
			"category_id": int64(2), "category": displays,
			"manufacturer_id": int64(2), "manufacturer": visiond,
		},
		{
			"id": int64(5), "name": "Studio Headset", "sku": "HS-330", "price": 149.0,
			"stock": int64(17), "in_stock": true,
			"release_date": nil, "created_at": date(2024, 5, 2),
			"category_id": int64(3), "category": audio,
			"manufacturer_id": int64(3), "manufacturer": soundcore,
		},
	}
}