package entity

// Source is a grounding citation attached to a model reply. Both fields are
// always non-empty.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}
