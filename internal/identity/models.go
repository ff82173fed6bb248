package identity

import "time"

// User is the registered account a call binds to.
//
// PublicKey/PrivateKey are PEM strings generated at registration. The
// signaling core never inspects them; they exist so clients can exchange
// encrypted material out of band.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	PublicKey    string    `json:"public_key,omitempty" db:"public_key"`
	PrivateKey   string    `json:"-" db:"private_key"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Listing is the trimmed shape returned by the contact picker.
type Listing struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}
