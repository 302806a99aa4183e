package migrate_test

import (
	"fmt"
	"time"

	"github.com/lvillar/invtpl/migrate"
	"github.com/lvillar/invtpl/schema"
)

// ExampleUpgrade converts a legacy flat document and reports the image
// references that moved under the template's assets.
func ExampleUpgrade() {
	doc, err := schema.Decode([]byte(`{
		"id": "classic",
		"name": "Classic",
		"elements": [
			{"id": "logo", "type": "image", "x": 40, "y": 40, "width": 80, "height": 40, "src": "images/logo.png"}
		]
	}`))
	if err != nil {
		fmt.Println(err)
		return
	}

	def, rewrites, err := migrate.Upgrade(doc, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(def.Meta.ID, def.Meta.Version, def.Page.Size)
	for _, r := range rewrites {
		fmt.Printf("%s: %s -> %s (legacy %t)\n", r.ElementID, r.From, r.To, r.Legacy)
	}
	// Output:
	// classic 1.0.0 A4
	// logo: images/logo.png -> assets/logo.png (legacy true)
}
