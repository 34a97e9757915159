package llm

const (
	TypeObject = "OBJECT"
	TypeArray  = "ARRAY"
	TypeString = "STRING"
)

// Schema is the subset of the OpenAPI schema the generation API accepts for
// structured output.
type Schema struct {
	Type             string             `json:"type"`
	Properties       map[string]*Schema `json:"properties,omitempty"`
	Items            *Schema            `json:"items,omitempty"`
	MaxItems         *int64             `json:"maxItems,omitempty"`
	PropertyOrdering []string           `json:"propertyOrdering,omitempty"`
}
