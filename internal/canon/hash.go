package canon

// HashExcludedFields are the event keys removed before hashing. They carry
// either the hash itself, derived digests, the record format version, or
// taxonomy tags that are a pure function of the event type. Extend this
// list explicitly; never exclude a field silently.
var HashExcludedFields = []string{
	"hash",
	"digests",
	"schema_version",
	"event_family",
	"event_level",
}

// HashEventJSON computes the chain hash for a raw serialized event.
// The raw bytes are decoded, the excluded fields removed, and the remainder
// canonicalized and hashed. Unknown fields present in the raw record are
// included in the hash — that is the forward-migration strategy for new
// event fields.
func HashEventJSON(raw []byte) (string, error) {
	v, err := Decode(raw)
	if err != nil {
		return "", err
	}
	if obj, ok := v.(map[string]any); ok {
		for _, k := range HashExcludedFields {
			delete(obj, k)
		}
	}
	return HashTree(v)
}
