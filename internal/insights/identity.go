package insights

// IdentityMapper translates event-tracker product ids into commerce product
// ids. The two key spaces are assumed identical unless overridden.
type IdentityMapper interface {
	CommerceID(trackerID string) string
}

// StaticMapper maps ids through a fixed override table and passes every other
// id through unchanged.
type StaticMapper map[string]string

// Identity maps every id to itself.
var Identity IdentityMapper = StaticMapper(nil)

// NewIdentityMapper returns a mapper with the given overrides.
func NewIdentityMapper(overrides map[string]string) IdentityMapper {
	if len(overrides) == 0 {
		return Identity
	}
	m := make(StaticMapper, len(overrides))
	for k, v := range overrides {
		m[k] = v
	}
	return m
}

func (m StaticMapper) CommerceID(trackerID string) string {
	if id, ok := m[trackerID]; ok && id != "" {
		return id
	}
	return trackerID
}
