package main

import (
	"flag"
	"log"
	"os"
	"runtime"

	"github.com/sevarac/deepnetts-communityedition-sub000/internal/loss"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/net"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/opt"
	"github.com/sevarac/deepnetts-communityedition-sub000/internal/winit"
)

const size = 8

// bars returns a size x size image with a horizontal (class 0), vertical
// (class 1) or diagonal (class 2) bar over low noise.
func bars(class int, rng *winit.RNG) []float64 {
	img := make([]float64, size*size)
	for i := range img {
		img[i] = rng.Range(0, 0.1)
	}
	pos := int(rng.Range(1, size-1))
	for k := 0; k < size; k++ {
		switch class {
		case 0:
			img[pos*size+k] = 1
		case 1:
			img[k*size+pos] = 1
		default:
			img[k*size+k] = 1
		}
	}
	return img
}

func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func main() {
	epochs := flag.Int("epochs", 30, "training epochs")
	patterns := flag.Int("patterns", 90, "training patterns")
	workers := flag.Int("workers", runtime.NumCPU(), "goroutines used by pooling layers")
	batch := flag.Int("batch", 10, "batch size")
	flag.Parse()

	log.SetFlags(0)
	log.Println("=== CNN Example: bar orientation ===")

	cfg := opt.DefaultConfig()
	cfg.Type = opt.Adam
	cfg.LearningRate = 0.005

	network, err := net.NewBuilder().
		Input(size, size, 1).
		Convolutional(3, 3, 6, 1).
		MaxPooling(2, 2, 2).
		Convolutional(3, 3, 8, 1).
		MaxPooling(2, 2, 2).
		Dense(16).
		Dropout(0.1).
		Output(3).
		Loss(loss.CrossEntropy).
		Optimizer(cfg).
		BatchMode(*batch).
		Workers(*workers).
		Logger(log.Default()).
		Build()
	if err != nil {
		log.Fatalf("build network: %v", err)
	}
	defer network.Close()
	network.Summary(os.Stdout)

	rng := winit.NewRNG(7)
	inputs := make([][]float64, *patterns)
	targets := make([][]float64, *patterns)
	for i := range inputs {
		class := i % 3
		inputs[i] = bars(class, rng)
		targets[i] = make([]float64, 3)
		targets[i][class] = 1
	}

	sched := opt.NewStepLR(network, 10, 0.5)
	for epoch := 1; epoch <= *epochs; epoch++ {
		l, err := network.TrainBatch(inputs, targets)
		if err != nil {
			log.Fatalf("epoch %d: %v", epoch, err)
		}
		sched.Step()
		log.Printf("Epoch %d, Loss: %.6f, LR: %.5f", epoch, l, network.LearningRate())
	}

	network.SetTraining(false)
	test := winit.NewRNG(8)
	const testPatterns = 60
	correct := 0
	for i := 0; i < testPatterns; i++ {
		class := i % 3
		pred, err := network.Predict(bars(class, test))
		if err != nil {
			log.Fatalf("predict: %v", err)
		}
		if argmax(pred) == class {
			correct++
		}
	}
	log.Printf("Accuracy on %d fresh patterns: %.1f%%", testPatterns, 100*float64(correct)/testPatterns)
}
