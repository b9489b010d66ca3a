package cloud

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"go.uber.org/zap"
)

// EC2VM implements VM against the EC2 API.
type EC2VM struct {
	client *ec2.Client
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewEC2VM wraps an ec2.Client as a VM adapter.
func NewEC2VM(client *ec2.Client, logger *zap.Logger, cbConfig CircuitBreakerConfig) *EC2VM {
	return &EC2VM{
		client: client,
		cb:     NewCircuitBreaker(cbConfig, logger, "ec2"),
		logger: logger,
	}
}

func (v *EC2VM) Describe(ctx context.Context, ids []string) (map[string]VMInfo, error) {
	result := make(map[string]VMInfo, len(ids))
	for _, batch := range Chunk(ids, DefaultBatchSize) {
		var out *ec2.DescribeInstancesOutput
		err := v.cb.Do(ctx, "vm.describe", func() error {
			var callErr error
			out, callErr = v.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: batch})
			return callErr
		})
		if err != nil {
			return nil, NewError("vm.describe", err)
		}
		for _, res := range out.Reservations {
			for _, inst := range res.Instances {
				info := VMInfo{
					ID:    aws.ToString(inst.InstanceId),
					State: string(inst.State.Name),
				}
				if inst.Placement != nil {
					info.AZ = aws.ToString(inst.Placement.AvailabilityZone)
				}
				info.PrivateIP = aws.ToString(inst.PrivateIpAddress)
				if inst.LaunchTime != nil {
					info.LaunchTime = *inst.LaunchTime
				}
				result[info.ID] = info
			}
		}
	}
	return result, nil
}

func (v *EC2VM) StopAndAwait(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := v.cb.Do(ctx, "vm.stop", func() error {
		_, callErr := v.client.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: ids})
		return callErr
	})
	if err != nil {
		return NewError("vm.stop", err)
	}

	waiter := ec2.NewInstanceStoppedWaiter(v.client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: ids}, 10*time.Minute); err != nil {
		return NewError("vm.stop.await", err)
	}
	return nil
}

func (v *EC2VM) TerminateAndAwait(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := v.cb.Do(ctx, "vm.terminate", func() error {
		_, callErr := v.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids})
		return callErr
	})
	if err != nil {
		return NewError("vm.terminate", err)
	}

	waiter := ec2.NewInstanceTerminatedWaiter(v.client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: ids}, 10*time.Minute); err != nil {
		return NewError("vm.terminate.await", err)
	}
	return nil
}
