package catalog

import _ "embed"

// The embedded catalog is the deployment default; operators point
// CATALOG_PATH at a fuller document in production.
//
//go:embed data/catalog.json
var embeddedCatalog []byte
