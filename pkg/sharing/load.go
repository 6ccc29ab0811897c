package sharing

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/deltashare/pkg/config"
	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/models"
	"github.com/ajitpratap0/deltashare/pkg/protocol"
)

// TableURL addresses a shared table as <profile>#<share>.<schema>.<table>
type TableURL struct {
	Profile string
	Table   protocol.Table
}

func (u TableURL) String() string {
	return u.Profile + "#" + u.Table.FullName()
}

// ParseURL splits a table URL. The profile part runs up to the first '#';
// the fragment must have exactly three non-empty dot-separated parts.
func ParseURL(rawURL string) (TableURL, error) {
	invalid := func() (TableURL, error) {
		return TableURL{}, errors.Newf(errors.ErrorTypeValidation,
			"invalid table URL %q, expected <profile>#<share>.<schema>.<table>", rawURL)
	}

	profile, fragment, ok := strings.Cut(rawURL, "#")
	if !ok {
		return invalid()
	}
	parts := strings.Split(fragment, ".")
	if len(parts) != 3 {
		return invalid()
	}
	share, schema, table := parts[0], parts[1], parts[2]
	if profile == "" || share == "" || schema == "" || table == "" {
		return invalid()
	}

	return TableURL{
		Profile: profile,
		Table:   protocol.Table{Name: table, Share: share, Schema: schema},
	}, nil
}

// LoadOptions tune LoadTable
type LoadOptions struct {
	// Limit keeps at most this many rows when set
	Limit *int
	// PredicateHints are forwarded to the server
	PredicateHints []string
	// Config overrides config.Default()
	Config *config.ClientConfig
	Logger *zap.Logger
}

// LoadTable reads the profile named in rawURL and materializes the table
func LoadTable(ctx context.Context, rawURL string, opts LoadOptions) (*models.RowSet, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	client, err := NewClientFromFile(u.Profile, opts.Config, opts.Logger)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	r := client.Reader(u.Table)
	if len(opts.PredicateHints) > 0 {
		r = r.WithPredicateHints(opts.PredicateHints)
	}
	if opts.Limit != nil {
		r = r.WithLimit(*opts.Limit)
	}
	return r.Materialize(ctx)
}
