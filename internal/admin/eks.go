package admin

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/eks/types"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
)

// EKSAPI is the subset of the EKS API the client uses.
type EKSAPI interface {
	DescribeNodegroup(ctx context.Context, params *eks.DescribeNodegroupInput, optFns ...func(*eks.Options)) (*eks.DescribeNodegroupOutput, error)
	UpdateNodegroupConfig(ctx context.Context, params *eks.UpdateNodegroupConfigInput, optFns ...func(*eks.Options)) (*eks.UpdateNodegroupConfigOutput, error)
}

// EKSOption configures an EKS client.
type EKSOption func(*EKS)

// WithEKSLogger sets the logger.
func WithEKSLogger(l *logging.Logger) EKSOption {
	return func(e *EKS) { e.logger = l }
}

// EKS resizes EKS managed node groups.
type EKS struct {
	api    EKSAPI
	logger *logging.Logger
}

// NewEKS loads the default AWS configuration and creates a client. An
// empty region defers to the environment.
func NewEKS(ctx context.Context, region string, opts ...EKSOption) (*EKS, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewEKSWithAPI(eks.NewFromConfig(cfg), opts...), nil
}

// NewEKSWithAPI creates a client over an existing API implementation.
func NewEKSWithAPI(api EKSAPI, opts ...EKSOption) *EKS {
	e := &EKS{
		api:    api,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ParseNodegroupID splits "<cluster>/<nodegroup>".
func ParseNodegroupID(clusterID string) (cluster, nodegroup string, err error) {
	cluster, nodegroup, ok := strings.Cut(clusterID, "/")
	if !ok || cluster == "" || nodegroup == "" || strings.Contains(nodegroup, "/") {
		return "", "", errors.NewValidationError("cluster id must be <cluster>/<nodegroup>").
			WithField("cluster_id").
			WithValue(clusterID)
	}
	return cluster, nodegroup, nil
}

func (e *EKS) describe(ctx context.Context, cluster, nodegroup string) (*types.Nodegroup, error) {
	out, err := e.api.DescribeNodegroup(ctx, &eks.DescribeNodegroupInput{
		ClusterName:   aws.String(cluster),
		NodegroupName: aws.String(nodegroup),
	})
	if err != nil {
		return nil, err
	}
	if out.Nodegroup == nil || out.Nodegroup.ScalingConfig == nil {
		return nil, fmt.Errorf("nodegroup %s/%s has no scaling config", cluster, nodegroup)
	}
	return out.Nodegroup, nil
}

// NodeCount returns the node group's desired size.
func (e *EKS) NodeCount(ctx context.Context, clusterID string) (int, error) {
	cluster, nodegroup, err := ParseNodegroupID(clusterID)
	if err != nil {
		return 0, err
	}
	ng, err := e.describe(ctx, cluster, nodegroup)
	if err != nil {
		return 0, fmt.Errorf("describe nodegroup: %w", err)
	}
	return int(aws.ToInt32(ng.ScalingConfig.DesiredSize)), nil
}

// Resize sets the node group's desired size to targetNodes.
func (e *EKS) Resize(ctx context.Context, clusterID string, targetNodes int) error {
	applyErr := func(msg string, cause error) *errors.AdminApplyError {
		return errors.NewAdminApplyError(msg, cause).
			WithClusterID(clusterID).
			WithTargetNodes(targetNodes)
	}

	if targetNodes < 0 || targetNodes > math.MaxInt32 {
		return applyErr("target node count out of range", nil).WithRetryable(false)
	}
	cluster, nodegroup, err := ParseNodegroupID(clusterID)
	if err != nil {
		return applyErr("invalid cluster id", err).WithRetryable(false)
	}

	ng, err := e.describe(ctx, cluster, nodegroup)
	if err != nil {
		return classify(applyErr("describe nodegroup", err), err)
	}
	if ng.Status != types.NodegroupStatusActive {
		return applyErr(fmt.Sprintf("nodegroup status is %s", ng.Status), nil)
	}

	target := int32(targetNodes)
	sc := ng.ScalingConfig
	minSize := min(aws.ToInt32(sc.MinSize), target)
	maxSize := max(aws.ToInt32(sc.MaxSize), target)

	_, err = e.api.UpdateNodegroupConfig(ctx, &eks.UpdateNodegroupConfigInput{
		ClusterName:   aws.String(cluster),
		NodegroupName: aws.String(nodegroup),
		ScalingConfig: &types.NodegroupScalingConfig{
			MinSize:     aws.Int32(minSize),
			MaxSize:     aws.Int32(maxSize),
			DesiredSize: aws.Int32(target),
		},
	})
	if err != nil {
		return classify(applyErr("update nodegroup config", err), err)
	}

	e.logger.WithCluster(clusterID).Info("nodegroup resize requested",
		"from", aws.ToInt32(sc.DesiredSize),
		"to", target,
	)
	return nil
}

// classify marks errors that will not succeed on retry.
func classify(applyErr *errors.AdminApplyError, cause error) *errors.AdminApplyError {
	var invalid *types.InvalidParameterException
	var notFound *types.ResourceNotFoundException
	if errors.As(cause, &invalid) || errors.As(cause, &notFound) {
		return applyErr.WithRetryable(false)
	}
	return applyErr
}
