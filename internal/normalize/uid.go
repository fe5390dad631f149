package normalize

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// PrefixedUID names a record by a source-assigned id: "<prefix>_<id>".
func PrefixedUID(prefix, id string) string {
	return prefix + "_" + strings.TrimSpace(id)
}

// RowUID names a bulk row that has no native id by hashing title|city|start_date|organizer.
// Two distinct events sharing all four values collapse into one record.
func RowUID(title, city, startDate, organizer string) string {
	sum := md5.Sum([]byte(strings.Join([]string{title, city, startDate, organizer}, "|")))
	return hex.EncodeToString(sum[:])
}
