package models

import (
	"testing"
)

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected bool
	}{
		{"admin role", RoleAdmin, true},
		{"supervisor role", RoleSupervisor, true},
		{"technician role", RoleTechnician, true},
		{"viewer role", RoleViewer, true},
		{"invalid role", "invalid", false},
		{"empty role", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidRole(tt.role)
			if result != tt.expected {
				t.Errorf("IsValidRole(%s) = %v, want %v", tt.role, result, tt.expected)
			}
		})
	}
}

func TestRole_HasPermission(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		action   string
		expected bool
	}{
		{"admin can delete attachment", RoleAdmin, ActionDeleteAttachment, true},
		{"supervisor can complete", RoleSupervisor, ActionCompleteWorkOrder, true},

		{"technician can manage safety", RoleTechnician, ActionManageSafety, true},
		{"technician can submit permit", RoleTechnician, ActionSubmitPermit, true},
		{"technician can resolve downtime", RoleTechnician, ActionResolveDowntime, true},
		{"technician can complete", RoleTechnician, ActionCompleteWorkOrder, true},
		{"technician can upload attachment", RoleTechnician, ActionUploadAttachment, true},
		{"technician cannot delete attachment", RoleTechnician, ActionDeleteAttachment, false},

		{"viewer can view", RoleViewer, ActionViewWorkOrder, true},
		{"viewer cannot manage parts", RoleViewer, ActionManageParts, false},
		{"viewer cannot complete", RoleViewer, ActionCompleteWorkOrder, false},

		{"unknown role has nothing", Role("contractor"), ActionViewWorkOrder, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.role.HasPermission(tt.action)
			if result != tt.expected {
				t.Errorf("Role %s HasPermission(%s) = %v, want %v",
					tt.role, tt.action, result, tt.expected)
			}
		})
	}
}

func TestClaims_Actor(t *testing.T) {
	claims := Claims{UserID: "u1", Username: "jdoe", Department: "maintenance", Role: RoleTechnician}
	actor := claims.Actor()

	if actor.UserID != "u1" || actor.UserName != "jdoe" {
		t.Errorf("unexpected actor identity: %+v", actor)
	}
	if actor.Department != "maintenance" {
		t.Errorf("Expected department 'maintenance', got %s", actor.Department)
	}
	if actor.Role != RoleTechnician {
		t.Errorf("Expected role technician, got %s", actor.Role)
	}
}
