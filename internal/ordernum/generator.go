// Package ordernum allocates human-readable order numbers of the form
// PREFIX-<unix millis>-<8 uppercase hex digits>.
package ordernum

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	DefaultPrefix = "VG"
	suffixBytes   = 4
)

// Generator allocates order numbers of the form PREFIX-<unix ms>-<HEX>.
// Uniqueness is probabilistic; the orders.number unique index is the backstop.
type Generator struct {
	prefix  string
	now     func() time.Time
	entropy io.Reader
}

func NewGenerator(prefix string) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Generator{
		prefix:  prefix,
		now:     time.Now,
		entropy: rand.Reader,
	}
}

func (g *Generator) Next() (string, error) {
	buf := make([]byte, suffixBytes)
	if _, err := io.ReadFull(g.entropy, buf); err != nil {
		return "", fmt.Errorf("read order number entropy: %w", err)
	}
	return fmt.Sprintf("%s-%d-%s", g.prefix, g.now().UnixMilli(), strings.ToUpper(hex.EncodeToString(buf))), nil
}
