//go:build !protogen

package directory

// NewGRPC is compiled out unless the generated directory protos are present
// (protogen build tag). Callers fall back to the Postgres-backed directory.
func NewGRPC(_ string) (Directory, error) {
	return nil, nil
}
