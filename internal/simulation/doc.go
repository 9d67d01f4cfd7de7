// Package simulation runs one generation of a campaign against the persona
// population.
//
// A generation is a fixed number of ticks executed strictly in order. At each
// tick the spreading resolver names the personas newly exposed to the post;
// every one of them receives a feed built from the post and the reactions it
// can see, and asks the inference collaborator how to react. Reactions within
// a tick are collected concurrently and committed as a batch in exposure
// order before the next tick resolves exposure, so the outcome depends only
// on the session random source and the collaborator's answers.
//
// Usage:
//
//	runner := simulation.NewRunner(graph, client, simulation.DefaultConfig(), rng, simulation.Options{Logger: logger})
//	result, err := runner.RunGeneration(ctx, seed, 1)
package simulation
