package enrichment

import "github.com/poiesic/docflow/core"

// Default corpus collections and relationship types.
const (
	CollectionPersons    = "persons"
	CollectionFacilities = "facilities"

	RelationshipNamedActor = "mentions-named-actor"
	RelationshipLocation   = "mentions-location"

	// MatchMethodFuzzy tags cross-references produced by fuzzy name matching.
	MatchMethodFuzzy = "fuzzy-levenshtein"
)

// Route sends mentions of one entity type to a corpus collection.
type Route struct {
	Collection   string
	Relationship string
}

// DefaultRoutes matches people against the persons collection and
// organizations against the facilities collection. Other entity types are
// stored but not cross-referenced.
func DefaultRoutes() map[core.EntityType]Route {
	return map[core.EntityType]Route{
		core.EntityPerson: {Collection: CollectionPersons, Relationship: RelationshipNamedActor},
		core.EntityOrg:    {Collection: CollectionFacilities, Relationship: RelationshipLocation},
	}
}
