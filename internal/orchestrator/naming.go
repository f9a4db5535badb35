package orchestrator

import "fmt"

const (
	migrationJobPrefix            = "auto-mj-"
	sourceConnectionProfilePrefix = "src-"
	defaultPostgresPort           = 5432
)

// vpcNames names the host-project and shared-base VPC network used for DMS
// private connectivity, one pair per k8s environment.
type vpcNames struct {
	hostProject string
	sharedBase  string
}

var vpcByEnv = map[string]vpcNames{
	"dev":     {hostProject: "prj-d-vpc-host", sharedBase: "vpc-d-shared-base"},
	"staging": {hostProject: "prj-s-vpc-host", sharedBase: "vpc-s-shared-base"},
	"prod":    {hostProject: "prj-p-vpc-host", sharedBase: "vpc-p-shared-base"},
	"sb1":     {hostProject: "prj-sb-vpc-host", sharedBase: "vpc-sb-shared-base"},
}

var envCode = map[string]string{
	"dev":     "d",
	"staging": "s",
	"prod":    "p",
	"sb1":     "sb",
}

// allowedIngressCIDRs are the private ranges preflight authorizes against
// the source instance's security group, identical across every env.
var allowedIngressCIDRs = []string{"10.0.0.0/8", "172.0.0.0/8", "192.0.0.0/8"}

func migrationJobID(service string) string {
	return migrationJobPrefix + service
}

func sourceConnectionProfileID(service string) string {
	return sourceConnectionProfilePrefix + service
}

// sqlInstanceName conforms to the naming pattern downstream infrastructure
// expects: sql-{env-code}-p-{service-name}-{timestamp}.
func sqlInstanceName(env, service, nowStamp string) string {
	return fmt.Sprintf("sql-%s-p-%s-%s", envCode[env], service, nowStamp)
}
