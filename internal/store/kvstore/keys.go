package kvstore

import "fmt"

// Key layout: every item in the table lives under PK="P#<projectId>"; SK
// discriminates the item kind within that project. A project's own record
// uses the bare "P#<projectId>" as both PK and SK.
const (
	attrPK   = "PK"
	attrSK   = "SK"
	attrGSI1 = "GSI1PK"

	prefixProject = "P"
)

func projectPK(projectID string) string {
	return fmt.Sprintf("%s#%s", prefixProject, projectID)
}

func skProject(projectID string) string {
	return projectPK(projectID)
}

func skSchema(projectID string) string {
	return projectPK(projectID) + "#S"
}

func skIdentitySource(projectID string) string {
	return projectPK(projectID) + "#IS"
}

func skEntityPrefix(projectID string) string {
	return projectPK(projectID) + "#E#"
}

func skEntity(projectID, uid string) string {
	return skEntityPrefix(projectID) + uid
}

func skPolicyPrefix(projectID string) string {
	return projectPK(projectID) + "#P#"
}

func skPolicy(projectID, policyID string) string {
	return skPolicyPrefix(projectID) + policyID
}

func skTemplatePrefix(projectID string) string {
	return projectPK(projectID) + "#T#"
}

func skTemplate(projectID, templateID string) string {
	return skTemplatePrefix(projectID) + templateID
}

func skTemplateLinkPrefix(projectID string) string {
	return projectPK(projectID) + "#TL#"
}

func skTemplateLink(projectID, newID string) string {
	return skTemplateLinkPrefix(projectID) + newID
}

// gsi1EntityType is the GSI1PK value written on every entity item of a
// project, grouping them under one partition. No read queries it;
// EntitiesLoad uses a sort-key prefix query on the base table.
func gsi1EntityType(projectID string) string {
	return "ES#" + projectID
}
