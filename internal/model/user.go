package model

// User rows are created lazily on first interaction.
type User struct {
	ID                   string  `json:"id"`
	Email                string  `json:"email,omitempty"`
	DisplayName          string  `json:"display_name,omitempty"`
	Theme                string  `json:"theme"`
	PreferredModel       string  `json:"preferred_model,omitempty"`
	PreferredTemperature float64 `json:"preferred_temperature"`
	Ctime                int64   `json:"ctime"`
	Mtime                int64   `json:"mtime"`
}

// Credential stores one provider key for one user; Ciphertext is
// nonce||ciphertext sealed with the server vault key.
type Credential struct {
	UserID     string `json:"user_id"`
	Provider   string `json:"provider"`
	Ciphertext []byte `json:"-"`
	Ctime      int64  `json:"ctime"`
	Mtime      int64  `json:"mtime"`
}
