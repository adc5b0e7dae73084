package grant

import "github.com/xraph/grant/id"

// ID is the primary identifier type for all grant records.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
