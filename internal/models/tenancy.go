package models

import (
	"slices"
	"time"
)

// Permissions checked by the access layer.
const (
	PermReviewRecord   = "review_record"
	PermVerifyRecord   = "verify_record"
	PermUploadDocument = "upload_document"
	PermManageProject  = "manage_project"
	PermManageSystem   = "manage_system"
	PermDelete         = "delete"
)

// Roles and what they grant. Team leads and system admins hold everything.
const (
	RoleReviewer = "reviewer"
	RoleUploader = "uploader"
	RoleTeamLead = "team_lead"
	RoleSysAdmin = "sys_admin"
)

var rolePermissions = map[string][]string{
	RoleReviewer: {PermReviewRecord},
	RoleUploader: {PermReviewRecord, PermUploadDocument},
	RoleTeamLead: {PermReviewRecord, PermVerifyRecord, PermUploadDocument, PermManageProject, PermDelete},
	RoleSysAdmin: {PermReviewRecord, PermVerifyRecord, PermUploadDocument, PermManageProject, PermManageSystem, PermDelete},
}

// UserRoles groups role names by scope.
type UserRoles struct {
	Team    []string `json:"team,omitempty" firestore:"team,omitempty" bson:"team,omitempty"`
	Project []string `json:"project,omitempty" firestore:"project,omitempty" bson:"project,omitempty"`
	System  []string `json:"system,omitempty" firestore:"system,omitempty" bson:"system,omitempty"`
}

// User is an authenticated reviewer. Email is the identity used for locks
// and audit entries.
type User struct {
	Email       string    `json:"email" firestore:"email" bson:"email"`
	Name        string    `json:"name,omitempty" firestore:"name,omitempty" bson:"name,omitempty"`
	DefaultTeam string    `json:"default_team" firestore:"default_team" bson:"default_team"`
	Roles       UserRoles `json:"roles" firestore:"roles" bson:"roles"`
}

// HasPermission reports whether any of the user's roles grants perm.
func (u *User) HasPermission(perm string) bool {
	if u == nil {
		return false
	}
	for _, scope := range [][]string{u.Roles.Team, u.Roles.Project, u.Roles.System} {
		for _, role := range scope {
			if slices.Contains(rolePermissions[role], perm) {
				return true
			}
		}
	}
	return false
}

// Project groups record groups for a team.
type Project struct {
	ID          string    `json:"_id" firestore:"-" bson:"_id"`
	Name        string    `json:"name" firestore:"name" bson:"name"`
	Description string    `json:"description,omitempty" firestore:"description,omitempty" bson:"description,omitempty"`
	Team        string    `json:"team" firestore:"team" bson:"team"`
	State       string    `json:"state,omitempty" firestore:"state,omitempty" bson:"state,omitempty"`
	Creator     string    `json:"creator,omitempty" firestore:"creator,omitempty" bson:"creator,omitempty"`
	DateCreated time.Time `json:"dateCreated" firestore:"dateCreated" bson:"dateCreated"`
}

// Project fields accepted by partial updates.
const (
	ProjectFieldName        = "name"
	ProjectFieldDescription = "description"
	ProjectFieldState       = "state"
)

// RecordGroup is a batch of records processed with one processor.
type RecordGroup struct {
	ID          string    `json:"_id" firestore:"-" bson:"_id"`
	Name        string    `json:"name" firestore:"name" bson:"name"`
	ProjectID   string    `json:"project_id" firestore:"project_id" bson:"project_id"`
	ProcessorID string    `json:"processorId" firestore:"processorId" bson:"processorId"`
	DateCreated time.Time `json:"dateCreated" firestore:"dateCreated" bson:"dateCreated"`
}
