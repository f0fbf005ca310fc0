package pgstat

import (
	"context"
	"regexp"
	"strings"
)

// Deployment labels detected from server-side hints.
const (
	DeploymentAzure      = "Azure Database for PostgreSQL"
	DeploymentRDS        = "AWS RDS"
	DeploymentAurora     = "AWS Aurora"
	DeploymentCloudSQL   = "Google Cloud SQL"
	DeploymentAlloyDB    = "Google AlloyDB"
	DeploymentHeroku     = "Heroku Postgres"
	DeploymentSelfHosted = "Self-hosted"
)

const (
	serverInfoQuery = `
SELECT current_setting('server_version') AS version,
       pg_postmaster_start_time() AS started_at,
       EXTRACT(EPOCH FROM now() - pg_postmaster_start_time())::double precision AS uptime_seconds,
       current_database() AS database,
       current_user AS username`

	managedSettingsQuery = `
SELECT name
FROM pg_settings
WHERE name LIKE 'rds.%'
   OR name LIKE 'azure.%'
   OR name LIKE 'cloudsql.%'
   OR name LIKE 'alloydb.%'`

	auroraFuncQuery = `SELECT EXISTS (SELECT 1 FROM pg_proc WHERE proname = 'aurora_version') AS has_aurora`
)

func (c *collector) collectServer(ctx context.Context) (*ServerInfo, error) {
	info := &ServerInfo{}
	if err := c.query(ctx, info, serverInfoQuery); err != nil {
		return nil, err
	}

	var settings []string
	if err := c.query(ctx, &settings, managedSettingsQuery); err != nil {
		return nil, err
	}

	var hasAuroraFunc bool
	if err := c.query(ctx, &hasAuroraFunc, auroraFuncQuery); err != nil {
		return nil, err
	}

	info.Deployment = detectDeployment(settings, hasAuroraFunc, info.Database, info.User)

	return info, nil
}

// herokuName matches the opaque role and database names Heroku provisions.
var herokuName = regexp.MustCompile(`^[du][0-9a-z]{10,}$`)

// detectDeployment classifies the hosting environment from vendor-specific
// settings, the Aurora admin function, and Heroku's generated names. Aurora
// wins over plain RDS since Aurora servers expose rds.* settings too.
func detectDeployment(settings []string, hasAuroraFunc bool, database, user string) string {
	if hasAuroraFunc {
		return DeploymentAurora
	}

	for _, name := range settings {
		switch {
		case strings.HasPrefix(name, "rds."):
			return DeploymentRDS
		case strings.HasPrefix(name, "azure."):
			return DeploymentAzure
		case strings.HasPrefix(name, "cloudsql."):
			return DeploymentCloudSQL
		case strings.HasPrefix(name, "alloydb."):
			return DeploymentAlloyDB
		}
	}

	if herokuName.MatchString(database) && herokuName.MatchString(user) {
		return DeploymentHeroku
	}

	return DeploymentSelfHosted
}
