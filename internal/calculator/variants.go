package calculator

// Variant describes one shipping method: the service code its quotes are
// selected by and how it is presented to customers.
type Variant struct {
	Key         string `json:"key"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description"`
	ServiceCode string `json:"serviceCode"`
	// International variants only price packages that cross a border;
	// domestic variants only price packages that do not.
	International bool `json:"international"`
}

// ServiceName returns the display name, falling back to the description when
// no name is defined.
func (v Variant) ServiceName() string {
	if v.Name != "" {
		return v.Name
	}
	return v.Description
}

var variants = []Variant{
	{Key: "usps_first_class", Description: "USPS First-Class Mail", ServiceCode: "dom:0"},
	{Key: "usps_priority_mail", Description: "USPS Priority Mail", ServiceCode: "dom:1"},
	{Key: "usps_express_mail", Description: "USPS Express Mail", ServiceCode: "dom:3"},
	{Key: "usps_retail_ground", Name: "USPS Retail Ground", Description: "USPS Standard Post", ServiceCode: "dom:4"},
	{Key: "usps_media_mail", Description: "USPS Media Mail", ServiceCode: "dom:6"},
	{Key: "usps_library_mail", Description: "USPS Library Mail", ServiceCode: "dom:7"},
	{Key: "usps_express_mail_international", Description: "USPS Priority Mail Express International", ServiceCode: "intl:1", International: true},
	{Key: "usps_priority_mail_international", Description: "USPS Priority Mail International", ServiceCode: "intl:2", International: true},
	{Key: "usps_first_class_package_international", Name: "USPS First-Class Package International", Description: "USPS First-Class Package International Service", ServiceCode: "intl:15", International: true},
}

// Variants returns every supported shipping method.
func Variants() []Variant {
	out := make([]Variant, len(variants))
	copy(out, variants)
	return out
}

// LookupVariant finds a shipping method by key.
func LookupVariant(key string) (Variant, bool) {
	for _, v := range variants {
		if v.Key == key {
			return v, true
		}
	}
	return Variant{}, false
}
