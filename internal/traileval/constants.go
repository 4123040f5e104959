package traileval

// MaxWeight is the largest absolute vote weight, 100%.
const MaxWeight = 10000

// percentDivisor turns a weight into a percentage.
const percentDivisor = 100
