package cloud

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"go.uber.org/zap"
)

// ECSScheduler implements Scheduler against the ECS API for one cluster.
type ECSScheduler struct {
	client  *ecs.Client
	cluster string
	cb      *CircuitBreaker
}

// NewECSScheduler wraps an ecs.Client bound to one cluster.
func NewECSScheduler(client *ecs.Client, cluster string, logger *zap.Logger, cbConfig CircuitBreakerConfig) *ECSScheduler {
	return &ECSScheduler{
		client:  client,
		cluster: cluster,
		cb:      NewCircuitBreaker(cbConfig, logger, "ecs"),
	}
}

func (s *ECSScheduler) ListHosts(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.cb.Do(ctx, "scheduler.listHosts", func() error {
		paginator := ecs.NewListContainerInstancesPaginator(s.client, &ecs.ListContainerInstancesInput{
			Cluster: aws.String(s.cluster),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			ids = append(ids, page.ContainerInstanceArns...)
		}
		return nil
	})
	if err != nil {
		return nil, NewError("scheduler.listHosts", err)
	}
	return ids, nil
}

func (s *ECSScheduler) DescribeHosts(ctx context.Context, ids []string) ([]SchedulerHost, error) {
	var hosts []SchedulerHost
	for _, batch := range Chunk(ids, DefaultBatchSize) {
		var out *ecs.DescribeContainerInstancesOutput
		err := s.cb.Do(ctx, "scheduler.describeHosts", func() error {
			var callErr error
			out, callErr = s.client.DescribeContainerInstances(ctx, &ecs.DescribeContainerInstancesInput{
				Cluster:            aws.String(s.cluster),
				ContainerInstances: batch,
			})
			return callErr
		})
		if err != nil {
			return nil, NewError("scheduler.describeHosts", err)
		}
		for _, f := range out.Failures {
			return nil, &SchedulerError{ARN: aws.ToString(f.Arn), Reason: aws.ToString(f.Reason)}
		}
		for _, ci := range out.ContainerInstances {
			h := SchedulerHost{
				ID:   aws.ToString(ci.ContainerInstanceArn),
				VMID: aws.ToString(ci.Ec2InstanceId),
			}
			for _, res := range ci.RegisteredResources {
				applyResource(&h, aws.ToString(res.Name), res.IntegerValue, true)
			}
			for _, res := range ci.RemainingResources {
				applyResource(&h, aws.ToString(res.Name), res.IntegerValue, false)
			}
			hosts = append(hosts, h)
		}
	}
	return hosts, nil
}

func applyResource(h *SchedulerHost, name string, value int32, registered bool) {
	switch name {
	case "CPU":
		if registered {
			h.RegisteredCPU = int(value)
		} else {
			h.RemainingCPU = int(value)
		}
	case "MEMORY":
		if registered {
			h.RegisteredMemory = int(value)
		} else {
			h.RemainingMemory = int(value)
		}
	}
}

func (s *ECSScheduler) ListServices(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.cb.Do(ctx, "scheduler.listServices", func() error {
		paginator := ecs.NewListServicesPaginator(s.client, &ecs.ListServicesInput{
			Cluster: aws.String(s.cluster),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			ids = append(ids, page.ServiceArns...)
		}
		return nil
	})
	if err != nil {
		return nil, NewError("scheduler.listServices", err)
	}
	return ids, nil
}

func (s *ECSScheduler) DescribeServices(ctx context.Context, ids []string) ([]Service, error) {
	var services []Service
	for _, batch := range Chunk(ids, DefaultBatchSize) {
		var out *ecs.DescribeServicesOutput
		err := s.cb.Do(ctx, "scheduler.describeServices", func() error {
			var callErr error
			out, callErr = s.client.DescribeServices(ctx, &ecs.DescribeServicesInput{
				Cluster:  aws.String(s.cluster),
				Services: batch,
			})
			return callErr
		})
		if err != nil {
			return nil, NewError("scheduler.describeServices", err)
		}
		for _, f := range out.Failures {
			return nil, &SchedulerError{ARN: aws.ToString(f.Arn), Reason: aws.ToString(f.Reason)}
		}
		for _, svc := range out.Services {
			s := Service{
				ID:             aws.ToString(svc.ServiceName),
				TaskDefinition: aws.ToString(svc.TaskDefinition),
				DesiredCount:   int(svc.DesiredCount),
				Status:         aws.ToString(svc.Status),
			}
			for _, lb := range svc.LoadBalancers {
				s.LoadBalancers = append(s.LoadBalancers, LoadBalancerRef{
					ClassicName:    aws.ToString(lb.LoadBalancerName),
					TargetGroupARN: aws.ToString(lb.TargetGroupArn),
				})
			}
			for _, ev := range svc.Events {
				e := Event{
					ID:      aws.ToString(ev.Id),
					Message: aws.ToString(ev.Message),
				}
				if ev.CreatedAt != nil {
					e.CreatedAt = *ev.CreatedAt
				}
				s.Events = append(s.Events, e)
			}
			services = append(services, s)
		}
	}
	return services, nil
}

func (s *ECSScheduler) ListTasks(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.cb.Do(ctx, "scheduler.listTasks", func() error {
		paginator := ecs.NewListTasksPaginator(s.client, &ecs.ListTasksInput{
			Cluster: aws.String(s.cluster),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			ids = append(ids, page.TaskArns...)
		}
		return nil
	})
	if err != nil {
		return nil, NewError("scheduler.listTasks", err)
	}
	return ids, nil
}

func (s *ECSScheduler) DescribeTasks(ctx context.Context, ids []string) ([]Task, error) {
	var tasks []Task
	for _, batch := range Chunk(ids, DefaultBatchSize) {
		var out *ecs.DescribeTasksOutput
		err := s.cb.Do(ctx, "scheduler.describeTasks", func() error {
			var callErr error
			out, callErr = s.client.DescribeTasks(ctx, &ecs.DescribeTasksInput{
				Cluster: aws.String(s.cluster),
				Tasks:   batch,
			})
			return callErr
		})
		if err != nil {
			return nil, NewError("scheduler.describeTasks", err)
		}
		for _, f := range out.Failures {
			return nil, &SchedulerError{ARN: aws.ToString(f.Arn), Reason: aws.ToString(f.Reason)}
		}
		for _, t := range out.Tasks {
			tasks = append(tasks, Task{
				ID:             aws.ToString(t.TaskArn),
				TaskDefinition: aws.ToString(t.TaskDefinitionArn),
				HostID:         aws.ToString(t.ContainerInstanceArn),
			})
		}
	}
	return tasks, nil
}

func (s *ECSScheduler) DeregisterHost(ctx context.Context, id string, force bool) error {
	err := s.cb.Do(ctx, "scheduler.deregisterHost", func() error {
		_, callErr := s.client.DeregisterContainerInstance(ctx, &ecs.DeregisterContainerInstanceInput{
			Cluster:           aws.String(s.cluster),
			ContainerInstance: aws.String(id),
			Force:             aws.Bool(force),
		})
		return callErr
	})
	if err != nil {
		return NewError("scheduler.deregisterHost", err)
	}
	return nil
}

func (s *ECSScheduler) ListActiveHosts(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.cb.Do(ctx, "scheduler.listActiveHosts", func() error {
		paginator := ecs.NewListContainerInstancesPaginator(s.client, &ecs.ListContainerInstancesInput{
			Cluster: aws.String(s.cluster),
			Status:  "ACTIVE",
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			ids = append(ids, page.ContainerInstanceArns...)
		}
		return nil
	})
	if err != nil {
		return nil, NewError("scheduler.listActiveHosts", err)
	}
	return ids, nil
}
