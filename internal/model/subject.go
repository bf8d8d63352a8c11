package model

import "fmt"

// Role is the staff role carried in a system user's token.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleTutor    Role = "tutor"
	RoleVerifier Role = "verifier"
	RoleStudent  Role = "student"
)

// UserKind tells which directory table a principal lives in.
type UserKind string

const (
	KindSystem  UserKind = "system"
	KindStudent UserKind = "student"
)

// AccessKind is the label stored in the access log for each subject.
type AccessKind string

const (
	AccessAdmin    AccessKind = "Administrador"
	AccessTutor    AccessKind = "Tutor"
	AccessVerifier AccessKind = "Verificador"
	AccessStudent  AccessKind = "Estudiante"
)

var roleAccessKinds = map[Role]AccessKind{
	RoleAdmin:    AccessAdmin,
	RoleTutor:    AccessTutor,
	RoleVerifier: AccessVerifier,
}

// AccessKindFor maps a role to its access-log label. Unknown roles are
// recorded verbatim.
func AccessKindFor(kind UserKind, role Role) AccessKind {
	if kind == KindStudent {
		return AccessStudent
	}
	if ak, ok := roleAccessKinds[role]; ok {
		return ak
	}
	return AccessKind(role)
}

// Subject is the authenticated principal a session belongs to. It is either
// a SystemUser or a Student.
type Subject interface {
	SubjectID() int64
	Kind() UserKind
	AccessKind() AccessKind
	String() string
	isSubject()
}

// SystemUser is a staff account (admin, tutor or verifier).
type SystemUser struct {
	ID   int64
	Role Role
}

func (u SystemUser) SubjectID() int64 { return u.ID }
func (u SystemUser) Kind() UserKind { return KindSystem }
func (u SystemUser) AccessKind() AccessKind { return AccessKindFor(KindSystem, u.Role) }
func (u SystemUser) String() string { return fmt.Sprintf("user:%d", u.ID) }
func (SystemUser) isSubject() {}

// Student is an enrolled student account.
type Student struct {
	ID int64
}

func (s Student) SubjectID() int64 { return s.ID }
func (s Student) Kind() UserKind { return KindStudent }
func (s Student) AccessKind() AccessKind { return AccessStudent }
func (s Student) String() string { return fmt.Sprintf("student:%d", s.ID) }
func (Student) isSubject() {}

// NewSubject builds the subject variant matching kind.
func NewSubject(kind UserKind, id int64, role Role) Subject {
	if kind == KindStudent {
		return Student{ID: id}
	}
	return SystemUser{ID: id, Role: role}
}

// RoleFor is the inverse of AccessKindFor for staff labels.
func RoleFor(ak AccessKind) Role {
	for role, kind := range roleAccessKinds {
		if kind == ak {
			return role
		}
	}
	if ak == AccessStudent {
		return RoleStudent
	}
	return Role(ak)
}
