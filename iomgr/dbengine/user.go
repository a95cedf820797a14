package dbengine

import (
	"github.com/govindnetworks/siodb/proto"
)

// User is a database server account.
type User struct {
	id       proto.UserID
	name     string
	realName string
	active   bool
}

func (u *User) ID() proto.UserID { return u.id }
func (u *User) Name() string     { return u.name }
func (u *User) RealName() string { return u.realName }
func (u *User) Active() bool     { return u.active }

// IsSuperUser reports whether this is the built-in superuser.
func (u *User) IsSuperUser() bool { return u.id == SuperUserID }

// TransactionParameters carry the acting user and the transaction id of a
// catalog mutation.
type TransactionParameters struct {
	UserID        proto.UserID
	TransactionID proto.TransactionID
}
