package uploader

import (
	"strconv"

	"github.com/google/uuid"
)

// identifierNamespace scopes name based UUIDs generated for files.
var identifierNamespace = uuid.MustParse("b3c6f1d0-5a1e-4c43-9f0e-2f7d8a61c4b9")

// defaultIdentifier derives a stable identifier from the file size, its
// relative path and a sample of its leading bytes, so the same file yields
// the same identifier across sessions.
func defaultIdentifier(size int64, relativePath string, sample []byte) string {
	name := make([]byte, 0, 24+len(relativePath)+len(sample))
	name = strconv.AppendInt(name, size, 10)
	name = append(name, '-')
	name = append(name, relativePath...)
	name = append(name, 0)
	name = append(name, sample...)
	return uuid.NewSHA1(identifierNamespace, name).String()
}
