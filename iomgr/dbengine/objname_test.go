package dbengine

import "testing"

func TestIsValidDatabaseObjectName(t *testing.T) {
	valid := []string{"T1", "SYS_TABLES", "_private", "a", "Table_2"}
	for _, name := range valid {
		if !isValidDatabaseObjectName(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}
	invalid := []string{"", "1T", "T-1", "T 1", "T.1", string(make([]byte, 256))}
	for _, name := range invalid {
		if isValidDatabaseObjectName(name) {
			t.Errorf("expected %q to be invalid", name)
		}
	}
}
