package cloud

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"go.uber.org/zap"
)

// ClassicLB implements LBClassic against the classic Elastic Load Balancing
// API.
type ClassicLB struct {
	client *elasticloadbalancing.Client
	cb     *CircuitBreaker
}

// NewClassicLB wraps an elasticloadbalancing.Client.
func NewClassicLB(client *elasticloadbalancing.Client, logger *zap.Logger, cbConfig CircuitBreakerConfig) *ClassicLB {
	return &ClassicLB{client: client, cb: NewCircuitBreaker(cbConfig, logger, "elb")}
}

func (c *ClassicLB) Deregister(ctx context.Context, name string, vmIDs []string) ([]string, error) {
	instances := make([]elbtypes.Instance, len(vmIDs))
	for i, id := range vmIDs {
		instances[i] = elbtypes.Instance{InstanceId: aws.String(id)}
	}

	err := c.cb.Do(ctx, "lbclassic.deregister", func() error {
		_, callErr := c.client.DeregisterInstancesFromLoadBalancer(ctx, &elasticloadbalancing.DeregisterInstancesFromLoadBalancerInput{
			LoadBalancerName: aws.String(name),
			Instances:        instances,
		})
		return callErr
	})
	if err != nil {
		return nil, NewError("lbclassic.deregister", err)
	}

	var out *elasticloadbalancing.DescribeLoadBalancersOutput
	err = c.cb.Do(ctx, "lbclassic.describe", func() error {
		var callErr error
		out, callErr = c.client.DescribeLoadBalancers(ctx, &elasticloadbalancing.DescribeLoadBalancersInput{
			LoadBalancerNames: []string{name},
		})
		return callErr
	})
	if err != nil {
		return nil, NewError("lbclassic.describe", err)
	}
	if len(out.LoadBalancerDescriptions) == 0 {
		return nil, nil
	}

	remaining := make([]string, 0, len(out.LoadBalancerDescriptions[0].Instances))
	for _, inst := range out.LoadBalancerDescriptions[0].Instances {
		remaining = append(remaining, aws.ToString(inst.InstanceId))
	}
	return remaining, nil
}

// LoadBalancersWithInstance paginates every classic LB in the account and
// returns the names of those with vmID currently registered as an instance.
func (c *ClassicLB) LoadBalancersWithInstance(ctx context.Context, vmID string) ([]string, error) {
	var names []string
	err := c.cb.Do(ctx, "lbclassic.loadBalancersWithInstance", func() error {
		paginator := elasticloadbalancing.NewDescribeLoadBalancersPaginator(c.client, &elasticloadbalancing.DescribeLoadBalancersInput{})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, lb := range page.LoadBalancerDescriptions {
				for _, inst := range lb.Instances {
					if aws.ToString(inst.InstanceId) == vmID {
						names = append(names, aws.ToString(lb.LoadBalancerName))
						break
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewError("lbclassic.loadBalancersWithInstance", err)
	}
	return names, nil
}

// TargetGroupLB implements LBTarget against the ALB/NLB target-group API.
type TargetGroupLB struct {
	client *elasticloadbalancingv2.Client
	cb     *CircuitBreaker
}

// NewTargetGroupLB wraps an elasticloadbalancingv2.Client.
func NewTargetGroupLB(client *elasticloadbalancingv2.Client, logger *zap.Logger, cbConfig CircuitBreakerConfig) *TargetGroupLB {
	return &TargetGroupLB{client: client, cb: NewCircuitBreaker(cbConfig, logger, "elbv2")}
}

func (t *TargetGroupLB) DeregisterTargets(ctx context.Context, arn string, vmIDs []string) error {
	targets := make([]elbv2types.TargetDescription, len(vmIDs))
	for i, id := range vmIDs {
		targets[i] = elbv2types.TargetDescription{Id: aws.String(id)}
	}

	err := t.cb.Do(ctx, "lbtarget.deregisterTargets", func() error {
		_, callErr := t.client.DeregisterTargets(ctx, &elasticloadbalancingv2.DeregisterTargetsInput{
			TargetGroupArn: aws.String(arn),
			Targets:        targets,
		})
		return callErr
	})
	if err != nil {
		return NewError("lbtarget.deregisterTargets", err)
	}
	return nil
}

func (t *TargetGroupLB) DescribeTargetGroups(ctx context.Context) ([]TargetGroup, error) {
	var arns []string
	err := t.cb.Do(ctx, "lbtarget.describeTargetGroups", func() error {
		paginator := elasticloadbalancingv2.NewDescribeTargetGroupsPaginator(t.client, &elasticloadbalancingv2.DescribeTargetGroupsInput{})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, tg := range page.TargetGroups {
				arns = append(arns, aws.ToString(tg.TargetGroupArn))
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewError("lbtarget.describeTargetGroups", err)
	}

	groups := make([]TargetGroup, 0, len(arns))
	for _, arn := range arns {
		var health *elasticloadbalancingv2.DescribeTargetHealthOutput
		err := t.cb.Do(ctx, "lbtarget.describeTargetHealth", func() error {
			var callErr error
			health, callErr = t.client.DescribeTargetHealth(ctx, &elasticloadbalancingv2.DescribeTargetHealthInput{
				TargetGroupArn: aws.String(arn),
			})
			return callErr
		})
		if err != nil {
			return nil, NewError("lbtarget.describeTargetHealth", err)
		}
		g := TargetGroup{ARN: arn}
		for _, desc := range health.TargetHealthDescriptions {
			if desc.Target != nil {
				g.Members = append(g.Members, aws.ToString(desc.Target.Id))
			}
		}
		groups = append(groups, g)
	}
	return groups, nil
}
