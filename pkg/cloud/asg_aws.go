package cloud

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"go.uber.org/zap"
)

// AutoScalingASG implements ASG against the Auto Scaling API.
type AutoScalingASG struct {
	client  *autoscaling.Client
	asgName string
	cb      *CircuitBreaker
}

// NewAutoScalingASG wraps an autoscaling.Client bound to one ASG.
func NewAutoScalingASG(client *autoscaling.Client, asgName string, logger *zap.Logger, cbConfig CircuitBreakerConfig) *AutoScalingASG {
	return &AutoScalingASG{
		client:  client,
		asgName: asgName,
		cb:      NewCircuitBreaker(cbConfig, logger, "asg"),
	}
}

func (a *AutoScalingASG) DescribeMembers(ctx context.Context) ([]Member, error) {
	var out *autoscaling.DescribeAutoScalingGroupsOutput
	err := a.cb.Do(ctx, "asg.describeMembers", func() error {
		var callErr error
		out, callErr = a.client.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
			AutoScalingGroupNames: []string{a.asgName},
		})
		return callErr
	})
	if err != nil {
		return nil, NewError("asg.describeMembers", err)
	}
	if len(out.AutoScalingGroups) == 0 {
		return nil, nil
	}

	members := make([]Member, 0, len(out.AutoScalingGroups[0].Instances))
	for _, inst := range out.AutoScalingGroups[0].Instances {
		members = append(members, Member{
			VMID:           aws.ToString(inst.InstanceId),
			AZ:             aws.ToString(inst.AvailabilityZone),
			LifecycleState: string(inst.LifecycleState),
		})
	}
	return members, nil
}

func (a *AutoScalingASG) Detach(ctx context.Context, vmIDs []string, decrementDesired bool) ([]Activity, error) {
	if len(vmIDs) == 0 {
		return nil, nil
	}
	var out *autoscaling.DetachInstancesOutput
	err := a.cb.Do(ctx, "asg.detach", func() error {
		var callErr error
		out, callErr = a.client.DetachInstances(ctx, &autoscaling.DetachInstancesInput{
			AutoScalingGroupName:           aws.String(a.asgName),
			InstanceIds:                    vmIDs,
			ShouldDecrementDesiredCapacity: aws.Bool(decrementDesired),
		})
		return callErr
	})
	if err != nil {
		return nil, NewError("asg.detach", err)
	}

	activities := make([]Activity, 0, len(out.Activities))
	for _, act := range out.Activities {
		a := Activity{ID: aws.ToString(act.ActivityId)}
		if act.StartTime != nil {
			a.StartTime = *act.StartTime
		}
		if act.Progress != nil {
			a.Progress = int(*act.Progress)
		}
		activities = append(activities, a)
	}
	return activities, nil
}

func (a *AutoScalingASG) DescribeActivities(ctx context.Context) ([]Activity, error) {
	var out *autoscaling.DescribeScalingActivitiesOutput
	err := a.cb.Do(ctx, "asg.describeActivities", func() error {
		var callErr error
		out, callErr = a.client.DescribeScalingActivities(ctx, &autoscaling.DescribeScalingActivitiesInput{
			AutoScalingGroupName: aws.String(a.asgName),
		})
		return callErr
	})
	if err != nil {
		return nil, NewError("asg.describeActivities", err)
	}

	activities := make([]Activity, 0, len(out.Activities))
	for _, act := range out.Activities {
		entry := Activity{ID: aws.ToString(act.ActivityId)}
		if act.StartTime != nil {
			entry.StartTime = *act.StartTime
		}
		if act.Progress != nil {
			entry.Progress = int(*act.Progress)
		}
		activities = append(activities, entry)
	}
	return activities, nil
}
