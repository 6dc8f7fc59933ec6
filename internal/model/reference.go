package model

// EntityKind identifies a reference dataset.
type EntityKind string

const (
	KindField    EntityKind = "field"
	KindCrop     EntityKind = "crop"
	KindMaterial EntityKind = "material"
)

// NameField is one name-bearing attribute of a reference record. Partial,
// when non-zero, caps the score of a containment hit against this value.
type NameField struct {
	Value   string
	Partial float64
}

// Reference is a record from one of the reference datasets. The set of
// implementations is closed: Field, Crop and Material.
type Reference interface {
	RefID() string
	DisplayName() string
	Kind() EntityKind
	NameFields() []NameField
	IsActive() bool
}

// Reference record status values.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusDeleted  = "deleted"
)

// Field is a cultivated plot or house.
type Field struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Code   string  `json:"code,omitempty"`
	Area   float64 `json:"area,omitempty"`
	Status string  `json:"status"`
}

func (f Field) RefID() string       { return f.ID }
func (f Field) DisplayName() string { return f.Name }
func (f Field) Kind() EntityKind    { return KindField }
func (f Field) IsActive() bool      { return f.Status == "" || f.Status == StatusActive }

// NameFields returns the field name and its short code.
func (f Field) NameFields() []NameField {
	out := []NameField{{Value: f.Name}}
	if f.Code != "" {
		out = append(out, NameField{Value: f.Code})
	}
	return out
}

// Crop is a cultivated crop variety.
type Crop struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	ScientificName string   `json:"scientific_name,omitempty"`
	Aliases        []string `json:"aliases,omitempty"`
	Status         string   `json:"status"`
}

func (c Crop) RefID() string       { return c.ID }
func (c Crop) DisplayName() string { return c.Name }
func (c Crop) Kind() EntityKind    { return KindCrop }
func (c Crop) IsActive() bool      { return c.Status == "" || c.Status == StatusActive }

// NameFields returns the crop name, scientific name and aliases.
func (c Crop) NameFields() []NameField {
	out := []NameField{{Value: c.Name}}
	if c.ScientificName != "" {
		out = append(out, NameField{Value: c.ScientificName})
	}
	for _, a := range c.Aliases {
		out = append(out, NameField{Value: a})
	}
	return out
}

// Material is an agricultural input such as a pesticide or fertilizer.
type Material struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	BrandName         string   `json:"brand_name,omitempty"`
	ActiveIngredients []string `json:"active_ingredients,omitempty"`
	MaterialType      string   `json:"material_type,omitempty"`
	Status            string   `json:"status"`
}

func (m Material) RefID() string       { return m.ID }
func (m Material) DisplayName() string { return m.Name }
func (m Material) Kind() EntityKind    { return KindMaterial }
func (m Material) IsActive() bool      { return m.Status == "" || m.Status == StatusActive }

// NameFields returns the product name, brand and active ingredients. Brand
// and ingredient containment hits score lower than a product-name hit.
func (m Material) NameFields() []NameField {
	out := []NameField{{Value: m.Name}}
	if m.BrandName != "" {
		out = append(out, NameField{Value: m.BrandName, Partial: 0.7})
	}
	for _, ing := range m.ActiveIngredients {
		out = append(out, NameField{Value: ing, Partial: 0.6})
	}
	return out
}

var (
	_ Reference = Field{}
	_ Reference = Crop{}
	_ Reference = Material{}
)
