package core

import "strings"

// CredentialGrid is the tabular credential data; row 0 holds the headers.
type CredentialGrid [][]string

// ColumnIndex holds the zero-based offsets of the login name and password columns.
type ColumnIndex struct {
	LoginName int `json:"loginName" yaml:"login_name"`
	Password  int `json:"password" yaml:"password"`
}

// ResolveColumns finds the login name and password columns by case-insensitive
// substring match. The first matching header in column order wins.
func ResolveColumns(headers []string) (ColumnIndex, error) {
	idx := ColumnIndex{LoginName: -1, Password: -1}
	for i, h := range headers {
		h = strings.ToLower(h)
		if idx.LoginName < 0 && strings.Contains(h, "login") && strings.Contains(h, "name") {
			idx.LoginName = i
		}
		if idx.Password < 0 && strings.Contains(h, "password") {
			idx.Password = i
		}
	}
	if idx.LoginName < 0 || idx.Password < 0 {
		return idx, ErrColumnsNotFound
	}
	return idx, nil
}

// FindMatch scans data rows for username. The first row carrying username
// decides the outcome: it returns that row's index and whether its password
// matches. Later rows with the same username are never consulted.
// It returns -1 when username does not appear at all.
func FindMatch(grid CredentialGrid, cols ColumnIndex, username, password string) (int, bool) {
	for i := 1; i < len(grid); i++ {
		stored, ok := cellAt(grid[i], cols.LoginName)
		if !ok || stored != username {
			continue
		}
		storedPassword, ok := cellAt(grid[i], cols.Password)
		return i, ok && storedPassword == password
	}
	return -1, false
}

// cellAt tolerates ragged rows; the Sheets API drops trailing empty cells.
func cellAt(row []string, i int) (string, bool) {
	if i < 0 || i >= len(row) {
		return "", false
	}
	return row[i], true
}
