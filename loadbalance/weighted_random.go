package loadbalance

import (
	"math/rand/v2"

	"pixlise-client/registry"
)

// WeightedRandomBalancer picks an instance with probability proportional to
// its Weight. Non-positive weights count as zero; if no instance has weight,
// all are equally likely.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.ServiceInstance, _ string) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	totalWeight := 0
	for _, v := range instances {
		totalWeight += max(v.Weight, 0)
	}
	if totalWeight == 0 {
		return &instances[rand.IntN(len(instances))], nil
	}

	r := rand.IntN(totalWeight)
	for i := range instances {
		r -= max(instances[i].Weight, 0)
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "weighted_random"
}
