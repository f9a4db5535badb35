package cloudadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/google/uuid"

	"github.com/homeport/dbmigrate/internal/pkg/logger"
)

const postgresPort = 5432

// AWSSource implements Source against real RDS/EC2 APIs.
type AWSSource struct {
	RDS *rds.Client
	EC2 *ec2.Client
}

// NewAWSSource builds an AWSSource from a shared aws.Config.
func NewAWSSource(cfg aws.Config) *AWSSource {
	return &AWSSource{
		RDS: rds.NewFromConfig(cfg),
		EC2: ec2.NewFromConfig(cfg),
	}
}

// ResetMasterPassword generates a UUID password, applies it via
// ModifyDBInstance, waits a 12s settle window (the instance needs time to
// transition into "modifying"), then polls every second until the
// instance reports "available" again.
func (a *AWSSource) ResetMasterPassword(ctx context.Context, instance string) (string, error) {
	newPassword := uuid.NewString()

	_, err := a.RDS.ModifyDBInstance(ctx, &rds.ModifyDBInstanceInput{
		DBInstanceIdentifier: aws.String(instance),
		MasterUserPassword:   aws.String(newPassword),
	})
	if err != nil {
		return "", fmt.Errorf("modify master password for %s: %w", instance, err)
	}

	select {
	case <-time.After(12 * time.Second):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	for {
		out, err := a.RDS.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
			DBInstanceIdentifier: aws.String(instance),
		})
		if err != nil {
			return "", fmt.Errorf("describe %s: %w", instance, err)
		}
		if len(out.DBInstances) == 0 {
			return "", fmt.Errorf("instance %s not found", instance)
		}

		status := aws.ToString(out.DBInstances[0].DBInstanceStatus)
		logger.Debug("waiting for master password reset", "instance", instance, "status", status)
		if status == "available" {
			break
		}

		select {
		case <-time.After(1 * time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	logger.Info("reset master password", "instance", instance)
	return newPassword, nil
}

// AllowIngress authorizes any cidrBlocks missing from the instance's
// security group TCP/5432 ingress rules and returns the newly added subset.
func (a *AWSSource) AllowIngress(ctx context.Context, instance string, cidrBlocks []string) ([]string, error) {
	group, err := a.securityGroup(ctx, instance)
	if err != nil {
		return nil, err
	}

	existing := map[string]bool{}
	for _, perm := range group.IpPermissions {
		if aws.ToString(perm.IpProtocol) != "tcp" || aws.ToInt32(perm.FromPort) > postgresPort || aws.ToInt32(perm.ToPort) < postgresPort {
			continue
		}
		for _, r := range perm.IpRanges {
			existing[aws.ToString(r.CidrIp)] = true
		}
	}

	var added []string
	for _, cidr := range cidrBlocks {
		if !existing[cidr] {
			added = append(added, cidr)
		}
	}
	if len(added) == 0 {
		return nil, nil
	}

	var ranges []ec2types.IpRange
	for _, cidr := range added {
		ranges = append(ranges, ec2types.IpRange{
			CidrIp:      aws.String(cidr),
			Description: aws.String("Added by dbmigrate for target-cloud access"),
		})
	}

	_, err = a.EC2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: group.GroupId,
		IpPermissions: []ec2types.IpPermission{
			{
				IpProtocol: aws.String("tcp"),
				FromPort:   aws.Int32(postgresPort),
				ToPort:     aws.Int32(postgresPort),
				IpRanges:   ranges,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("authorize ingress on %s: %w", aws.ToString(group.GroupId), err)
	}

	return added, nil
}

func (a *AWSSource) securityGroup(ctx context.Context, instance string) (*ec2types.SecurityGroup, error) {
	dbOut, err := a.RDS.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(instance),
	})
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", instance, err)
	}
	if len(dbOut.DBInstances) == 0 {
		return nil, fmt.Errorf("instance %s not found", instance)
	}

	sgs := dbOut.DBInstances[0].VpcSecurityGroups
	if len(sgs) == 0 {
		return nil, fmt.Errorf("expected at least one security group for %s but none were found", instance)
	}
	if len(sgs) > 1 {
		return nil, fmt.Errorf("expected at most one security group for %s but %d were found", instance, len(sgs))
	}

	groupID := aws.ToString(sgs[0].VpcSecurityGroupId)
	sgOut, err := a.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{groupID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe security group %s: %w", groupID, err)
	}
	if len(sgOut.SecurityGroups) == 0 {
		return nil, fmt.Errorf("security group %s not found", groupID)
	}
	return &sgOut.SecurityGroups[0], nil
}
