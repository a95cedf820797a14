package dbengine

// Database object naming rules shared by databases, tables, columns,
// constraints and indexes.

const maxDatabaseObjectNameLength = 255

func isValidDatabaseObjectName(name string) bool {
	if len(name) == 0 || len(name) > maxDatabaseObjectNameLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
