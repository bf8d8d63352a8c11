package model

import "time"

// User is a principal from the directory. System users live in `users`,
// students in `students`; Kind says which.
//
// Fields:
//  ID        – primary key within its table.
//  Kind      – system or student.
//  Role      – staff role; RoleStudent for students.
//  Email     – unique email address used for login codes.
//  Name      – display name written to the access log.
//  Code      – student enrolment code (students only).
//  Semester  – current semester (students only).
//  DNI       – national id (students only).
//  Specialty – tutor specialty (staff only).
//  IsActive  – whether the account may log in.
type User struct {
	ID        int64
	Kind      UserKind
	Role      Role
	Email     string
	Name      string
	Code      string
	Semester  string
	DNI       string
	Specialty string
	IsActive  bool
	CreatedAt time.Time
}

// Subject returns the session subject for this user.
func (u User) Subject() Subject { return NewSubject(u.Kind, u.ID, u.Role) }

// LoginCode models an entry in the `login_codes` table. Only a bcrypt hash
// of the emailed code is stored.
type LoginCode struct {
	ID        uint64     // login_codes.id
	Email     string     // login_codes.email
	CodeHash  string     // login_codes.code_hash
	ExpiresAt time.Time  // login_codes.expires_at
	UsedAt    *time.Time // login_codes.used_at (nullable)
	CreatedAt time.Time  // login_codes.created_at
}
